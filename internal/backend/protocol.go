package backend

import (
	"path"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
	"github.com/GriffinCanCode/forgestudio/internal/shared/utils"
)

// CreateWorkspaceResponse is returned by POST {prefix}/workspaces
type CreateWorkspaceResponse struct {
	WorkspaceID string `json:"workspaceId"`
}

// TreeItem is one listing record. Flat listings carry path and type only;
// nested listings add name and children.
type TreeItem struct {
	Path     string     `json:"path"`
	Name     string     `json:"name,omitempty"`
	Type     string     `json:"type"`
	Children []TreeItem `json:"children,omitempty"`
}

// TreeResponse is returned by GET {prefix}/workspaces/{wid}
type TreeResponse struct {
	Files []TreeItem `json:"files"`
}

// FileContent is the body of a file read and of a file write
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteResponse acknowledges a file write
type WriteResponse struct {
	OK bool `json:"ok"`
}

// BuildInfo is returned by POST {prefix}/workspaces/{wid}/build
type BuildInfo struct {
	Logs    string `json:"logs"`
	Preview string `json:"preview"`
}

// errorResponse covers the error bodies backends send: {"error": ...} or
// {"detail": ...}.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (e *errorResponse) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}

// Flatten converts a listing, flat or nested, into FileEntry records.
// A nested item without a path takes its parent's path joined with its name.
func Flatten(items []TreeItem) []types.FileEntry {
	var out []types.FileEntry
	flattenInto(&out, "", items)
	return out
}

func flattenInto(out *[]types.FileEntry, parent string, items []TreeItem) {
	for _, item := range items {
		p := item.Path
		if p == "" && item.Name != "" {
			p = path.Join(parent, item.Name)
		}
		p = utils.CleanPath(p)
		if p == "" {
			continue
		}

		kind := types.ParseKind(item.Type)
		if len(item.Children) > 0 {
			kind = types.KindDirectory
		}
		*out = append(*out, types.FileEntry{Path: p, Kind: kind})

		if len(item.Children) > 0 {
			flattenInto(out, p, item.Children)
		}
	}
}
