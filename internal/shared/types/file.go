package types

import "strings"

// FileKind distinguishes files from directories
type FileKind int

const (
	KindFile FileKind = iota
	KindDirectory
)

// String returns the wire name of the kind
func (k FileKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "folder"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its wire name
func (k FileKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts "file", "folder" and "dir"
func (k *FileKind) UnmarshalText(text []byte) error {
	*k = ParseKind(string(text))
	return nil
}

// ParseKind maps a backend type string to a FileKind.
// Anything that is not a directory spelling is treated as a file.
func ParseKind(s string) FileKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "folder", "dir", "directory":
		return KindDirectory
	default:
		return KindFile
	}
}

// FileEntry is one record of a flat tree listing
type FileEntry struct {
	Path string   `json:"path"`
	Kind FileKind `json:"type"`
}

// FileNode is a node of the workspace file forest.
// Children is nil for files and non-nil (possibly empty) for directories.
type FileNode struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Kind     FileKind    `json:"type"`
	Children []*FileNode `json:"children,omitempty"`
}

// IsDir reports whether the node is a directory
func (n *FileNode) IsDir() bool {
	return n.Kind == KindDirectory
}
