package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// GetTree returns the file forest, fetching it on first use
func (h *Handlers) GetTree(c *gin.Context) {
	forest := h.workspace.Tree()
	if forest == nil {
		var err error
		if forest, err = h.workspace.RefreshTree(c.Request.Context()); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"workspace": h.workspace.ID(), "files": nonNil(forest)})
}

// RefreshTree refetches the listing
func (h *Handlers) RefreshTree(c *gin.Context) {
	forest, err := h.workspace.RefreshTree(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workspace": h.workspace.ID(), "files": nonNil(forest)})
}

func nonNil(forest []*types.FileNode) []*types.FileNode {
	if forest == nil {
		return []*types.FileNode{}
	}
	return forest
}

// ListTabs returns the open files
func (h *Handlers) ListTabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tabs": h.workspace.Tabs()})
}

// OpenTab opens a file and returns its entry
func (h *Handlers) OpenTab(c *gin.Context) {
	path, ok := bindPath(c)
	if !ok {
		return
	}
	if err := h.workspace.Open(c.Request.Context(), path); err != nil {
		h.fail(c, err)
		return
	}
	h.tabsResponse(c, path)
}

// ActivateTab switches to an open file
func (h *Handlers) ActivateTab(c *gin.Context) {
	path, ok := bindPath(c)
	if !ok {
		return
	}
	if err := h.workspace.Activate(c.Request.Context(), path); err != nil {
		h.fail(c, err)
		return
	}
	h.tabsResponse(c, path)
}

// CloseTab closes an open file
func (h *Handlers) CloseTab(c *gin.Context) {
	path, ok := bindPath(c)
	if !ok {
		return
	}
	if err := h.workspace.CloseTab(c.Request.Context(), path); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tabs":   h.workspace.Tabs(),
		"editor": h.workspace.Editor().State(),
	})
}

func (h *Handlers) tabsResponse(c *gin.Context, path string) {
	c.JSON(http.StatusOK, gin.H{
		"tabs":   h.workspace.Tabs(),
		"file":   h.workspace.File(path),
		"editor": h.workspace.Editor().State(),
	})
}

// GetFile returns the cached entry of a file
func (h *Handlers) GetFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter is required"})
		return
	}
	c.JSON(http.StatusOK, h.workspace.File(path))
}

// ReloadFile retries a file whose fetch failed
func (h *Handlers) ReloadFile(c *gin.Context) {
	path, ok := bindPath(c)
	if !ok {
		return
	}
	if err := h.workspace.Reload(c.Request.Context(), path); err != nil {
		h.fail(c, err)
		return
	}
	h.tabsResponse(c, path)
}

// GetEditor returns what the editor shows
func (h *Handlers) GetEditor(c *gin.Context) {
	c.JSON(http.StatusOK, h.workspace.Editor().State())
}

// UpdateEditor applies a user edit to the editor
func (h *Handlers) UpdateEditor(c *gin.Context) {
	var req types.EditorUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid editor update"})
		return
	}

	state, err := h.workspace.Type(req.Value, req.BaseRevision)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"editor": state,
		"file":   h.workspace.File(state.Path),
	})
}

// Save writes the editor's value for the active file
func (h *Handlers) Save(c *gin.Context) {
	res, err := h.workspace.Save(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
