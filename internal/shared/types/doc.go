// Package types provides shared data structures for the workspace session core.
//
// Core Types:
//   - FileEntry: One record of the backend's flat tree listing
//   - FileNode: Node of the ordered, hierarchical file forest
//   - FileKind: FILE or DIRECTORY
//
// Request Types:
//   - PathRequest, EditorUpdateRequest: Control API bodies
//   - BuildView: Wire form of a build snapshot pushed to views
//
// Errors:
//   - Error: Typed failure carrying a Kind from the session taxonomy
//   - ErrInvalidReference, ErrNetworkFailure, ErrRemoteRejected,
//     ErrStreamDisconnected, ErrLoadError: sentinels for errors.Is
//
// Example Usage:
//
//	entries := []types.FileEntry{
//	    {Path: "lib/main.dart", Kind: types.KindFile},
//	    {Path: "pubspec.yaml", Kind: types.KindFile},
//	}
//	forest := tree.Build(entries)
package types
