// Package tabs tracks the ordered set of open files and the active one.
package tabs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// CloseSelection decides which tab becomes active when the active tab closes
type CloseSelection int

const (
	// SelectLeftNeighbor activates the tab left of the closed one, or the
	// new first tab when the closed tab was first.
	SelectLeftNeighbor CloseSelection = iota
	// SelectFirstRemaining always activates the first remaining tab.
	SelectFirstRemaining
)

// ParseCloseSelection maps "left" and "first" to a policy
func ParseCloseSelection(s string) (CloseSelection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return SelectLeftNeighbor, nil
	case "first":
		return SelectFirstRemaining, nil
	default:
		return 0, fmt.Errorf("unknown tab close policy %q", s)
	}
}

// String returns the config spelling of the policy
func (p CloseSelection) String() string {
	if p == SelectFirstRemaining {
		return "first"
	}
	return "left"
}

// Snapshot is a copy of the tab state
type Snapshot struct {
	Files  []string `json:"files"`
	Active string   `json:"active"`
}

// TabSet is the ordered list of open files plus an optional active file.
// The active file is always one of the open files. Safe for concurrent use.
type TabSet struct {
	mu     sync.RWMutex
	files  []string
	active string
	policy CloseSelection
}

// New creates an empty tab set
func New(policy CloseSelection) *TabSet {
	return &TabSet{policy: policy}
}

// Open adds path if it is not already open and makes it active
func (t *TabSet) Open(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index(path) < 0 {
		t.files = append(t.files, path)
	}
	t.active = path
}

// Activate makes an open path active
func (t *TabSet) Activate(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.index(path) < 0 {
		return types.InvalidReference("activate", path)
	}
	t.active = path
	return nil
}

// Close removes path. Closing the active tab selects a replacement by the
// set's policy, or clears the active file when no tabs remain.
func (t *TabSet) Close(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.index(path)
	if i < 0 {
		return types.InvalidReference("close", path)
	}

	t.files = append(t.files[:i:i], t.files[i+1:]...)

	if t.active != path {
		return nil
	}
	switch {
	case len(t.files) == 0:
		t.active = ""
	case t.policy == SelectFirstRemaining || i == 0:
		t.active = t.files[0]
	default:
		t.active = t.files[i-1]
	}
	return nil
}

// Active returns the active path and whether there is one
func (t *TabSet) Active() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active, t.active != ""
}

// Files returns the open paths in tab order
func (t *TabSet) Files() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.files...)
}

// Contains reports whether path is open
func (t *TabSet) Contains(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.index(path) >= 0
}

// Snapshot returns a copy of the state
func (t *TabSet) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{Files: append([]string{}, t.files...), Active: t.active}
}

func (t *TabSet) index(path string) int {
	for i, f := range t.files {
		if f == path {
			return i
		}
	}
	return -1
}
