package build

import (
	"time"

	"github.com/GriffinCanCode/forgestudio/internal/shared/types"
)

// Phase of a build session
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseSucceeded
	PhaseFailed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseBuilding:
		return "BUILDING"
	case PhaseSucceeded:
		return "SUCCEEDED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "IDLE"
	}
}

// MarshalText encodes the phase name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether the phase ends a run
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Preview is the preview entry for the last good build. URL and Token are
// read together, so the URL always carries Token.
type Preview struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	Phase Phase  `json:"phase"`
}

// Snapshot is an immutable copy of the session state. Seq increases with
// every published snapshot; Run counts triggers.
type Snapshot struct {
	Phase        Phase     `json:"phase"`
	LogLines     []string  `json:"log_lines"`
	PreviewToken string    `json:"preview_token,omitempty"`
	PreviewURL   string    `json:"preview_url,omitempty"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	Run          uint64    `json:"run"`
	Seq          uint64    `json:"seq"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// View converts the snapshot to its wire form for pushed views
func (s Snapshot) View(kind string) types.BuildView {
	return types.BuildView{
		Type:         kind,
		Phase:        s.Phase.String(),
		LogLines:     s.LogLines,
		PreviewToken: s.PreviewToken,
		PreviewURL:   s.PreviewURL,
		ExitCode:     s.ExitCode,
		Run:          s.Run,
		Seq:          s.Seq,
	}
}
