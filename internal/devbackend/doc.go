// Package devbackend is a local implementation of the workspace backend.
//
// Workspaces are directories under a root. The API matches the remote
// backend the studio daemon talks to: workspace creation, nested tree
// listings, file reads and writes, a build whose output is streamed as
// server-sent events ending in an EXIT frame, and preview serving with a
// <base href> rewritten for the preview prefix. It backs local runs and
// the client's integration tests.
package devbackend
