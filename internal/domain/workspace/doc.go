// Package workspace wires one remote workspace's session components.
//
// A Workspace owns the file forest, the tab set, the content cache, the
// editor bridge and the build session, and is the only place they are
// connected: selecting a file opens a tab, starts its fetch and drives the
// editor; a completed fetch of the active file is pushed to the editor;
// switching files abandons the previous fetch. The build session is
// independent of the rest and is handed out by Build to the views that
// need it.
package workspace
