package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/config"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/logging"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/forgestudio/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/forgestudio/internal/shared/id"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

// RequestIDHeader carries the per-call request ID
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a rejected response is kept as the message
const maxErrorBody = 4096

// Options holds optional collaborators
type Options struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	// Transport replaces the network transport under the retry layer
	Transport http.RoundTripper
}

// Client talks to the workspace backend
type Client struct {
	rest    *resty.Client
	stream  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	metrics *monitoring.Metrics
	logger  *zap.Logger

	baseURL       string
	apiPrefix     string
	previewPrefix string
}

// New creates a backend client from configuration
func New(cfg config.BackendConfig, opts Options) (*Client, error) {
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}

	logger := logging.OrNop(opts.Logger)

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.RetryWaitMin = cfg.RetryWaitMin
	retry.RetryWaitMax = cfg.RetryWaitMax
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retry.Logger = retryLogger{logger.Sugar()}
	if opts.Transport != nil {
		retry.HTTPClient.Transport = opts.Transport
	}

	transport := &idempotentRetry{
		retry: &retryablehttp.RoundTripper{Client: retry},
		plain: retry.HTTPClient.Transport,
	}

	c := &Client{
		limiter:       newLimiter(cfg.RateLimitRPS),
		metrics:       opts.Metrics,
		logger:        logger,
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		apiPrefix:     normalizePrefix(cfg.APIPrefix),
		previewPrefix: normalizePrefix(cfg.PreviewPrefix),
	}

	c.rest = c.newResty(transport, cfg).SetTimeout(cfg.Timeout)
	// Log streams stay open for the whole build
	c.stream = c.newResty(transport, cfg)

	c.breaker = resilience.New("workspace-backend", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsFailure: isBackendFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Backend breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			c.metrics.SetBreakerState(int(to))
		},
	})

	return c, nil
}

func (c *Client) newResty(transport http.RoundTripper, cfg config.BackendConfig) *resty.Client {
	r := resty.New().
		SetTransport(transport).
		SetBaseURL(c.baseURL).
		SetHeader("User-Agent", "forgestudio/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.AuthToken != "" {
		r.SetAuthToken(cfg.AuthToken)
	}
	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.SetHeader(RequestIDHeader, id.NewRequestID().String())
		}
		tracing.Inject(req.Context(), req.Header)
		return nil
	})
	return r
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// CreateWorkspace asks the backend for a new workspace and returns its ID
func (c *Client) CreateWorkspace(ctx context.Context) (string, error) {
	var out CreateWorkspaceResponse
	_, err := c.call(ctx, request{op: "create_workspace"}, func() (*resty.Response, error) {
		return c.rest.R().
			SetContext(ctx).
			SetResult(&out).
			SetError(&errorResponse{}).
			Post(c.apiPrefix + "/workspaces")
	})
	if err != nil {
		return "", err
	}
	if out.WorkspaceID == "" {
		return "", &types.Error{Kind: types.KindRemoteRejected, Op: "create_workspace", Err: errors.New("empty workspace id")}
	}
	return out.WorkspaceID, nil
}

// Bind returns a handle scoped to one workspace
func (c *Client) Bind(workspaceID string) (*Workspace, error) {
	if err := utils.ValidateID(workspaceID, "workspace id", true); err != nil {
		return nil, err
	}
	return &Workspace{client: c, id: workspaceID}, nil
}

// request names a call for errors, logs and metrics
type request struct {
	op   string
	path string
	// raw responses are left unread by resty
	raw bool
}

// call runs one request through the limiter and breaker and classifies
// the outcome.
func (c *Client) call(ctx context.Context, req request, send func() (*resty.Response, error)) (*resty.Response, error) {
	op, path := req.op, req.path

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &types.Error{Kind: types.KindNetworkFailure, Op: op, Path: path, Err: err}
	}

	timer := monitoring.NewTimer(c.metrics, op)
	resp, err := resilience.Execute(c.breaker, func() (*resty.Response, error) {
		resp, err := send()
		if err != nil {
			return nil, &types.Error{Kind: types.KindNetworkFailure, Op: op, Path: path, Err: err}
		}
		if resp.IsError() {
			return resp, &types.Error{
				Kind:   types.KindRemoteRejected,
				Op:     op,
				Path:   path,
				Status: resp.StatusCode(),
				Err:    errors.New(rejectionMessage(resp, req.raw)),
			}
		}
		return resp, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		err = &types.Error{Kind: types.KindNetworkFailure, Op: op, Path: path, Err: err}
	}

	timer.Stop(statusLabel(resp, err))
	if err != nil {
		c.logger.Debug("Backend call failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
	}
	return resp, err
}

// isBackendFailure counts transport failures and 5xx responses against
// the breaker. Rejections of the request itself and caller cancellation
// do not.
func isBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *types.Error
	if errors.As(err, &e) && e.Kind == types.KindRemoteRejected {
		return e.Status >= http.StatusInternalServerError
	}
	return true
}

func rejectionMessage(resp *resty.Response, raw bool) string {
	if body, ok := resp.Error().(*errorResponse); ok && body.message() != "" {
		return body.message()
	}
	if raw {
		if body := resp.RawBody(); body != nil {
			data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
			if msg := strings.TrimSpace(string(data)); msg != "" {
				return msg
			}
		}
	} else if msg := strings.TrimSpace(resp.String()); msg != "" {
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return msg
	}
	return http.StatusText(resp.StatusCode())
}

func statusLabel(resp *resty.Response, err error) string {
	if resp != nil && resp.StatusCode() != 0 {
		return strconv.Itoa(resp.StatusCode())
	}
	if kind := types.KindOf(err); kind != 0 {
		return strings.ToLower(kind.String())
	}
	return "error"
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// idempotentRetry retries GET and HEAD through the retrying transport and
// sends everything else once.
type idempotentRetry struct {
	retry http.RoundTripper
	plain http.RoundTripper
}

func (t *idempotentRetry) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return t.retry.RoundTrip(req)
	}
	return t.plain.RoundTrip(req)
}

// retryLogger adapts zap to retryablehttp's leveled logger
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

var _ retryablehttp.LeveledLogger = retryLogger{}

// openStream issues the log stream request and hands the body to a LogStream
func (c *Client) openStream(ctx context.Context, route, workspaceID string) (*stream.LogStream, error) {
	resp, err := c.call(ctx, request{op: "build_logs", raw: true}, func() (*resty.Response, error) {
		return c.stream.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache").
			SetPathParam("wid", workspaceID).
			Get(route)
	})
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			resp.RawBody().Close()
		}
		return nil, err
	}

	c.metrics.IncStreams()
	return stream.New(&countedBody{ReadCloser: resp.RawBody(), metrics: c.metrics}, c.logger.Named("stream")), nil
}

// countedBody keeps the active stream gauge in step with open bodies
type countedBody struct {
	io.ReadCloser
	metrics *monitoring.Metrics
	once    sync.Once
}

func (b *countedBody) Close() error {
	b.once.Do(b.metrics.DecStreams)
	return b.ReadCloser.Close()
}
