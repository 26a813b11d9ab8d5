package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/velinussage/pfp-animate/internal/domain"
)

// DefaultMotion is used when an animation request names no motion.
const DefaultMotion = "nod"

// Keyframe is one pose of a motion. Rotations are in degrees with negative
// yaw turning left and negative pitch looking down. Pupil offsets follow
// screen axes, so negative PupilY looks up. Expression amounts start at 0
// for neutral.
type Keyframe struct {
	Pitch   float64 `json:"pitch,omitempty"`
	Yaw     float64 `json:"yaw,omitempty"`
	Roll    float64 `json:"roll,omitempty"`
	Blink   float64 `json:"blink,omitempty"`
	Eyebrow float64 `json:"eyebrow,omitempty"`
	Wink    float64 `json:"wink,omitempty"`
	PupilX  float64 `json:"pupilX,omitempty"`
	PupilY  float64 `json:"pupilY,omitempty"`
	Aaa     float64 `json:"aaa,omitempty"`
	Smile   float64 `json:"smile,omitempty"`
}

// Motion is an ordered keyframe sequence played back as an animation.
type Motion struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	FPS         int        `json:"fps"`
	Keyframes   []Keyframe `json:"keyframes"`
}

// Full-strength values for the expression amounts.
const (
	fullWink    = 22
	fullSmile   = 1.0
	fullAaa     = 60
	fullEyebrow = 12
	fullBlink   = 15
	fullPupil   = 12
)

var motions = map[string]Motion{
	"nod": {
		Name: "nod", Description: "Clear nodding yes motion", FPS: 12,
		Keyframes: []Keyframe{
			{Pitch: 0}, {Pitch: -12}, {Pitch: -15}, {Pitch: -10}, {Pitch: 5},
			{Pitch: 8}, {Pitch: 3}, {Pitch: -8}, {Pitch: -5}, {Pitch: 0},
		},
	},
	"wink": {
		Name: "wink", Description: "Playful wink with smile", FPS: 10,
		Keyframes: []Keyframe{
			{Smile: 0.3}, {Wink: 5, Smile: 0.5}, {Wink: 15, Smile: 0.7}, {Wink: 22, Smile: 0.9}, {Wink: 20, Smile: 1.0},
			{Wink: 15, Smile: 0.8}, {Wink: 8, Smile: 0.6}, {Wink: 2, Smile: 0.5}, {Smile: 0.4}, {Smile: 0.3},
		},
	},
	"shake_no": {
		Name: "shake_no", Description: "Shaking head no", FPS: 12,
		Keyframes: []Keyframe{
			{Yaw: 0}, {Yaw: -8}, {Yaw: -15}, {Yaw: -10}, {Yaw: 5},
			{Yaw: 12}, {Yaw: 15}, {Yaw: 10}, {Yaw: -5}, {Yaw: 0},
		},
	},
	"nod_wink": {
		Name: "nod_wink", Description: "Nod yes then wink", FPS: 10,
		Keyframes: []Keyframe{
			{Smile: 0.2}, {Pitch: -10, Smile: 0.3}, {Pitch: -15, Smile: 0.3}, {Pitch: 5, Smile: 0.4}, {Smile: 0.5},
			{Wink: 10, Smile: 0.7}, {Wink: 22, Smile: 0.9}, {Wink: 20, Smile: 1.0}, {Wink: 8, Smile: 0.7}, {Smile: 0.4},
		},
	},
	"look_around": {
		Name: "look_around", Description: "Eyes looking around", FPS: 8,
		Keyframes: []Keyframe{
			{}, {PupilX: -10, PupilY: -5}, {PupilX: -12}, {PupilX: -8, PupilY: 8}, {PupilY: 10},
			{PupilX: 10, PupilY: 8}, {PupilX: 12}, {PupilX: 8, PupilY: -8}, {PupilY: -8}, {},
		},
	},
	"surprise": {
		Name: "surprise", Description: "Surprised expression", FPS: 12,
		Keyframes: []Keyframe{
			{}, {Eyebrow: 5, Aaa: 10, Blink: -5}, {Eyebrow: 10, Aaa: 30, Blink: -10}, {Eyebrow: 12, Aaa: 50, Blink: -15},
			{Eyebrow: 12, Aaa: 40, Blink: -12}, {Eyebrow: 10, Aaa: 30, Blink: -8}, {Eyebrow: 8, Aaa: 20, Blink: -5},
			{Eyebrow: 5, Aaa: 10, Blink: -2}, {Eyebrow: 2, Aaa: 5}, {},
		},
	},
	"laugh": {
		Name: "laugh", Description: "Laughing expression", FPS: 10,
		Keyframes: []Keyframe{
			{Smile: 0.3}, {Smile: 0.5, Aaa: 20, Pitch: -3}, {Smile: 0.8, Aaa: 40, Pitch: -5}, {Smile: 1.0, Aaa: 60, Pitch: -8},
			{Smile: 1.1, Aaa: 50, Pitch: -5}, {Smile: 1.0, Aaa: 70, Pitch: -10}, {Smile: 1.1, Aaa: 55, Pitch: -6},
			{Smile: 0.9, Aaa: 40, Pitch: -4}, {Smile: 0.7, Aaa: 20, Pitch: -2}, {Smile: 0.5, Aaa: 5},
		},
	},
}

// Motions returns the built-in motions sorted by name.
func Motions() []Motion {
	out := make([]Motion, 0, len(motions))
	for _, m := range motions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupMotion resolves name, defaulting to DefaultMotion when empty.
func LookupMotion(name string) (Motion, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultMotion
	}
	m, ok := motions[name]
	if !ok {
		names := make([]string, 0, len(motions))
		for _, known := range Motions() {
			names = append(names, known.Name)
		}
		return Motion{}, domain.NewValidationError("motion", "must be one of "+strings.Join(names, ", "))
	}
	return m, nil
}

// PlanMotion turns a motion into one job per keyframe, in playback order.
// Steps sit on row 0 with the column counting keyframes; DX and DY carry the
// head rotation relative to the style preset's range.
func (p *Planner) PlanMotion(motion, prefix string) ([]domain.FrameJob, Motion, error) {
	m, err := LookupMotion(motion)
	if err != nil {
		return nil, Motion{}, err
	}
	prefix, err = NormalizePrefix(prefix)
	if err != nil {
		return nil, Motion{}, err
	}
	preset := p.catalog.Resolve(prefix)

	jobs := make([]domain.FrameJob, 0, len(m.Keyframes))
	for i, kf := range m.Keyframes {
		jobs = append(jobs, domain.FrameJob{
			Index: i,
			Step: domain.Step{
				Col:  i,
				Row:  0,
				DX:   roundOffset(clampUnit(kf.Yaw / preset.MaxYaw)),
				DY:   roundOffset(clampUnit(kf.Pitch / preset.MaxPitch)),
				Name: fmt.Sprintf("%s_%s_%02d", prefix, m.Name, i),
			},
			Prompt: preset.Prompt + " " + keyframeSentence(kf) + " " + consistencySuffix,
		})
	}
	return jobs, m, nil
}

// EstimateFrames prices a run of n frames.
func (p *Planner) EstimateFrames(n int) Estimate {
	return Estimate{
		Frames:      n,
		PerFrameUSD: p.frameCost,
		CostUSD:     math.Round(float64(n)*p.frameCost*1e4) / 1e4,
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func keyframeSentence(kf Keyframe) string {
	sentences := []string{headSentence(kf)}
	sentences = append(sentences, eyeSentences(kf)...)
	sentences = append(sentences, mouthSentences(kf)...)
	return strings.Join(sentences, " ")
}

func headSentence(kf Keyframe) string {
	var head []string
	if kf.Yaw != 0 {
		head = append(head, fmt.Sprintf("turned %.0f degrees to the %s", math.Abs(kf.Yaw), horizontal(kf.Yaw)))
	}
	if kf.Pitch != 0 {
		head = append(head, fmt.Sprintf("tilted %.0f degrees %s", math.Abs(kf.Pitch), vertical(kf.Pitch)))
	}
	if kf.Roll != 0 {
		head = append(head, fmt.Sprintf("leaning %.0f degrees toward the %s shoulder", math.Abs(kf.Roll), horizontal(kf.Roll)))
	}
	if len(head) == 0 {
		return "Head facing the camera directly."
	}
	return "Head " + strings.Join(head, " and ") + "."
}

func eyeSentences(kf Keyframe) []string {
	var out []string
	if kf.PupilX != 0 || kf.PupilY != 0 {
		glance := "glancing"
		if math.Hypot(kf.PupilX, kf.PupilY) >= fullPupil {
			glance = "looking far"
		}
		out = append(out, fmt.Sprintf("Eyes %s %s.", glance, pupilDirection(kf.PupilX, kf.PupilY)))
	} else {
		out = append(out, "Eyes looking into the lens.")
	}
	if kf.Wink > 0 {
		out = append(out, fmt.Sprintf("Left eye %s closed in a wink.", degree(kf.Wink/fullWink)))
	}
	switch {
	case kf.Blink < 0:
		out = append(out, fmt.Sprintf("Eyes %s wide open.", degree(-kf.Blink/fullBlink)))
	case kf.Blink > 0:
		out = append(out, fmt.Sprintf("Eyelids %s lowered.", degree(kf.Blink/fullBlink)))
	}
	switch {
	case kf.Eyebrow > 0:
		out = append(out, fmt.Sprintf("Eyebrows %s raised.", degree(kf.Eyebrow/fullEyebrow)))
	case kf.Eyebrow < 0:
		out = append(out, fmt.Sprintf("Eyebrows %s furrowed.", degree(-kf.Eyebrow/fullEyebrow)))
	}
	return out
}

func mouthSentences(kf Keyframe) []string {
	var out []string
	if kf.Smile > 0 {
		out = append(out, fmt.Sprintf("Smiling %s.", degree(kf.Smile/fullSmile)))
	}
	if kf.Aaa > 0 {
		out = append(out, fmt.Sprintf("Mouth %s open as if laughing or saying ah.", degree(kf.Aaa/fullAaa)))
	}
	return out
}

func pupilDirection(x, y float64) string {
	// Screen axes: negative y is up.
	switch {
	case x == 0:
		return vertical(-y)
	case y == 0:
		return "to the " + horizontal(x)
	default:
		return vertical(-y) + " and to the " + horizontal(x)
	}
}

// degree words an amount where 1 is full strength.
func degree(v float64) string {
	switch {
	case v < 0.35:
		return "slightly"
	case v < 0.8:
		return "partly"
	default:
		return "fully"
	}
}
