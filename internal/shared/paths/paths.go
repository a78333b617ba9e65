package paths

import (
	"fmt"
	"path"
	"path/filepath"
)

// Project-relative locations, slash separated
const (
	BuildDir    = "build"
	WebDir      = "build/web"
	PubCacheDir = ".pub-cache"
	ToolDir     = ".dart_tool"
	IndexFile   = "index.html"
)

// URL prefixes served by the workspace backend
const (
	WorkspacesAPI = "/api/workspaces"
	PreviewRoot   = "/preview"
)

// Generated lists the ignore patterns for directories a build writes
func Generated() []string {
	return []string{BuildDir + "/**", ToolDir + "/**", PubCacheDir + "/**"}
}

// Project is one workspace checkout on disk
type Project struct {
	Root string
}

// Join resolves a slash separated project path
func (p Project) Join(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// WebDir returns the web build output directory
func (p Project) WebDir() string {
	return p.Join(WebDir)
}

// PubCache returns the per-project package cache
func (p Project) PubCache() string {
	return p.Join(PubCacheDir)
}

// WebFile returns a file inside the web build output
func (p Project) WebFile(rel string) string {
	return filepath.Join(p.WebDir(), filepath.FromSlash(rel))
}

// Workspace returns the API path of a workspace
func Workspace(wid string) string {
	return path.Join(WorkspacesAPI, wid)
}

// BuildLogs returns the API path of a workspace's build log stream
func BuildLogs(wid string) string {
	return path.Join(Workspace(wid), "build", "logs")
}

// PreviewBase returns the directory URL the built app is served from
func PreviewBase(wid string) string {
	return fmt.Sprintf("%s/%s/%s/", PreviewRoot, wid, WebDir)
}

// PreviewIndex returns the URL of the built app's entry page
func PreviewIndex(wid string) string {
	return PreviewBase(wid) + IndexFile
}
