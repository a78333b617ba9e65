package types

// PathRequest is the body of tab and file operations on the control API
type PathRequest struct {
	Path string `json:"path" binding:"required"`
}

// EditorUpdateRequest carries a user edit into the headless widget.
// BaseRevision is the widget revision the edit was made against.
type EditorUpdateRequest struct {
	Value        string  `json:"value"`
	BaseRevision *uint64 `json:"base_revision,omitempty"`
}

// BuildView is the wire form of a build snapshot pushed to views
type BuildView struct {
	Type         string   `json:"type"`
	Phase        string   `json:"phase"`
	LogLines     []string `json:"log_lines"`
	PreviewToken string   `json:"preview_token,omitempty"`
	PreviewURL   string   `json:"preview_url,omitempty"`
	ExitCode     *int     `json:"exit_code,omitempty"`
	Run          uint64   `json:"run"`
	Seq          uint64   `json:"seq"`
}
