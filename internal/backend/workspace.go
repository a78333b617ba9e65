package backend

import (
	"context"
	"net/url"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/forgestudio/internal/backend/stream"
	"github.com/GriffinCanCode/forgestudio/internal/shared/paths"
	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

// Workspace is a client handle bound to one workspace ID
type Workspace struct {
	client *Client
	id     string
}

// ID returns the bound workspace ID
func (w *Workspace) ID() string {
	return w.id
}

func (w *Workspace) route(suffix string) string {
	return w.client.apiPrefix + "/workspaces/{wid}" + suffix
}

// ListTree fetches the workspace listing as flat entries. Nested listings
// are flattened.
func (w *Workspace) ListTree(ctx context.Context) ([]types.FileEntry, error) {
	var out TreeResponse
	_, err := w.client.call(ctx, request{op: "list_tree"}, func() (*resty.Response, error) {
		return w.client.rest.R().
			SetContext(ctx).
			SetPathParam("wid", w.id).
			SetResult(&out).
			SetError(&errorResponse{}).
			Get(w.route(""))
	})
	if err != nil {
		return nil, err
	}
	return Flatten(out.Files), nil
}

// ReadFile fetches the content of one file
func (w *Workspace) ReadFile(ctx context.Context, path string) (string, error) {
	if err := utils.ValidatePath(path); err != nil {
		return "", &types.Error{Kind: types.KindInvalidReference, Op: "read_file", Path: path, Err: err}
	}

	var out FileContent
	_, err := w.client.call(ctx, request{op: "read_file", path: path}, func() (*resty.Response, error) {
		return w.client.rest.R().
			SetContext(ctx).
			SetPathParam("wid", w.id).
			SetQueryParam("path", path).
			SetResult(&out).
			SetError(&errorResponse{}).
			Get(w.route("/file"))
	})
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// WriteFile replaces the content of one file
func (w *Workspace) WriteFile(ctx context.Context, path, content string) error {
	if err := utils.ValidatePath(path); err != nil {
		return &types.Error{Kind: types.KindInvalidReference, Op: "write_file", Path: path, Err: err}
	}

	_, err := w.client.call(ctx, request{op: "write_file", path: path}, func() (*resty.Response, error) {
		return w.client.rest.R().
			SetContext(ctx).
			SetPathParam("wid", w.id).
			SetBody(FileContent{Path: path, Content: content}).
			SetResult(&WriteResponse{}).
			SetError(&errorResponse{}).
			Put(w.route("/file"))
	})
	return err
}

// StartBuild asks the backend to prepare a build
func (w *Workspace) StartBuild(ctx context.Context) (*BuildInfo, error) {
	var out BuildInfo
	_, err := w.client.call(ctx, request{op: "start_build"}, func() (*resty.Response, error) {
		return w.client.rest.R().
			SetContext(ctx).
			SetPathParam("wid", w.id).
			SetResult(&out).
			SetError(&errorResponse{}).
			Post(w.route("/build"))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenLogStream subscribes to the build log stream. The stream lives until
// its exit event, a disconnect, Close, or ctx cancellation.
func (w *Workspace) OpenLogStream(ctx context.Context) (*stream.LogStream, error) {
	return w.client.openStream(ctx, w.route("/build/logs"), w.id)
}

// PreviewURL returns the preview entry URL. A non-empty token is appended
// as the v query parameter so browsers refetch after each build.
func (w *Workspace) PreviewURL(token string) string {
	u := w.client.baseURL + w.client.previewPrefix + "/" + url.PathEscape(w.id) + "/" + paths.WebDir + "/" + paths.IndexFile
	if token != "" {
		u += "?v=" + url.QueryEscape(token)
	}
	return u
}
