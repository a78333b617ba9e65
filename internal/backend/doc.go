/*
Package backend is the client for the remote workspace backend.

The backend owns workspaces (a directory of project files), reads and writes
files, and runs builds whose output it streams as server-sent events.

# Resilience

Requests go through resty with a go-retryablehttp transport. Only GET
requests are retried; a POST build or PUT file is sent once. A token
bucket limiter paces requests and a circuit breaker fails calls fast while
the backend is unreachable. Remote 4xx responses do not count against the
breaker.

# Errors

Every failure is a *types.Error:

  - KindNetworkFailure: no response (transport error, open breaker)
  - KindRemoteRejected: non-2xx response, Status set
  - KindInvalidReference: a path rejected before any request was sent

# Usage

	client, err := backend.New(cfg.Backend, backend.Options{Logger: log})
	ws := client.Bind(workspaceID)

	files, err := ws.ListTree(ctx)
	text, err := ws.ReadFile(ctx, "lib/main.dart")
	logs, err := ws.OpenLogStream(ctx)
*/
package backend
