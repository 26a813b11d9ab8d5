package domain

import "fmt"

// RunStatus enumerates generation run lifecycle states.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Step places a frame inside the grid. DX runs from -1 (far left) to 1 (far
// right) and DY from -1 (down) to 1 (up); the center cell is (0, 0).
type Step struct {
	Col  int     `json:"col"`
	Row  int     `json:"row"`
	DX   float64 `json:"dx"`
	DY   float64 `json:"dy"`
	Name string  `json:"name"`
}

// StepName builds the stable frame label used by clients and export file names.
func StepName(prefix string, col, row int) string {
	return fmt.Sprintf("%s_%d_%d", prefix, col, row)
}

// FrameJob is one unit of generation work within a grid.
type FrameJob struct {
	Index  int    `json:"index"`
	Step   Step   `json:"step"`
	Prompt string `json:"prompt"`
}
