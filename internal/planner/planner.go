// Package planner turns a grid size and style prefix into the ordered list of
// frame jobs for one generation run.
package planner

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
)

const (
	// MinSteps and MaxSteps bound both grid axes to keep cost and latency in check.
	MinSteps = 3
	MaxSteps = 10

	// DefaultPrefix names frames and selects the default style preset.
	DefaultPrefix = "avatar"

	// DefaultFrameCostUSD is the per-frame price used for estimates.
	DefaultFrameCostUSD = 0.15

	consistencySuffix = "Keep the exact same character, facial features and lighting as the reference image, " +
		"centered on a pure black background."
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Planner builds deterministic frame job lists.
type Planner struct {
	catalog   *Catalog
	frameCost float64
}

// Estimate is the projected size and price of a run.
type Estimate struct {
	Frames      int     `json:"frames"`
	PerFrameUSD float64 `json:"perFrameUsd"`
	CostUSD     float64 `json:"costUsd"`
}

// New returns a Planner. A nil catalog uses the built-in preset only.
func New(catalog *Catalog, frameCostUSD float64) *Planner {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if frameCostUSD < 0 {
		frameCostUSD = 0
	}
	return &Planner{catalog: catalog, frameCost: frameCostUSD}
}

// Catalog exposes the preset catalog backing the planner.
func (p *Planner) Catalog() *Catalog {
	return p.catalog
}

// Plan enumerates xSteps*ySteps jobs in row-major order: row 0 is the top
// row (looking up), columns run left to right, and index = row*xSteps + col.
func (p *Planner) Plan(xSteps, ySteps int, prefix string) ([]domain.FrameJob, error) {
	if err := ValidateGrid(xSteps, ySteps); err != nil {
		return nil, err
	}
	prefix, err := NormalizePrefix(prefix)
	if err != nil {
		return nil, err
	}
	preset := p.catalog.Resolve(prefix)

	jobs := make([]domain.FrameJob, 0, xSteps*ySteps)
	for row := 0; row < ySteps; row++ {
		for col := 0; col < xSteps; col++ {
			dx, dy := Position(col, row, xSteps, ySteps)
			step := domain.Step{
				Col:  col,
				Row:  row,
				DX:   dx,
				DY:   dy,
				Name: domain.StepName(prefix, col, row),
			}
			jobs = append(jobs, domain.FrameJob{
				Index:  row*xSteps + col,
				Step:   step,
				Prompt: framePrompt(preset, dx, dy),
			})
		}
	}
	return jobs, nil
}

// Estimate reports how many frames a grid needs and what they cost.
func (p *Planner) Estimate(xSteps, ySteps int) (Estimate, error) {
	if err := ValidateGrid(xSteps, ySteps); err != nil {
		return Estimate{}, err
	}
	return p.EstimateFrames(xSteps * ySteps), nil
}

// ValidateGrid checks both axes against [MinSteps, MaxSteps].
func ValidateGrid(xSteps, ySteps int) error {
	if xSteps < MinSteps || xSteps > MaxSteps {
		return domain.InvalidGridError("xSteps", xSteps, MinSteps, MaxSteps)
	}
	if ySteps < MinSteps || ySteps > MaxSteps {
		return domain.InvalidGridError("ySteps", ySteps, MinSteps, MaxSteps)
	}
	return nil
}

// NormalizePrefix trims and lower-cases prefix, defaulting to DefaultPrefix.
func NormalizePrefix(prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return DefaultPrefix, nil
	}
	if !prefixPattern.MatchString(prefix) {
		return "", domain.NewValidationError("prefix", "must be 1-32 characters of a-z, 0-9, '_' or '-'")
	}
	return prefix, nil
}

// Position maps a grid cell to normalized offsets in [-1,1]. dx grows to the
// right and dy grows upward, so the top-left cell is (-1, 1).
func Position(col, row, xSteps, ySteps int) (float64, float64) {
	dx := -1 + 2*float64(col)/float64(xSteps-1)
	dy := 1 - 2*float64(row)/float64(ySteps-1)
	return roundOffset(dx), roundOffset(dy)
}

func roundOffset(v float64) float64 {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		return 0 // drop negative zero
	}
	return v
}

func framePrompt(preset Preset, dx, dy float64) string {
	return preset.Prompt + " " + poseSentence(dx*preset.MaxYaw, dy*preset.MaxPitch) + " " + consistencySuffix
}

func poseSentence(yaw, pitch float64) string {
	if yaw == 0 && pitch == 0 {
		return "Head facing the camera directly, looking straight into the lens."
	}

	var head []string
	if yaw != 0 {
		head = append(head, fmt.Sprintf("turned %.1f degrees to the %s", math.Abs(yaw), horizontal(yaw)))
	}
	if pitch != 0 {
		head = append(head, fmt.Sprintf("tilted %.1f degrees %s", math.Abs(pitch), vertical(pitch)))
	}
	return fmt.Sprintf("Head %s, eyes looking %s.", strings.Join(head, " and "), gaze(yaw, pitch))
}

func horizontal(yaw float64) string {
	if yaw < 0 {
		return "left"
	}
	return "right"
}

func vertical(pitch float64) string {
	if pitch > 0 {
		return "up"
	}
	return "down"
}

func gaze(yaw, pitch float64) string {
	switch {
	case pitch == 0:
		return "to the " + horizontal(yaw)
	case yaw == 0:
		return vertical(pitch)
	default:
		return vertical(pitch) + " and to the " + horizontal(yaw)
	}
}
