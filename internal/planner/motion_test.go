package planner

import (
	"errors"
	"strings"
	"testing"

	"github.com/velinussage/pfp-animate/internal/domain"
)

func TestPlanMotionFollowsKeyframes(t *testing.T) {
	jobs, motion, err := New(nil, DefaultFrameCostUSD).PlanMotion("nod", "me")
	if err != nil {
		t.Fatalf("PlanMotion error: %v", err)
	}
	if motion.Name != "nod" || motion.FPS != 12 || len(jobs) != len(motion.Keyframes) {
		t.Fatalf("motion = %+v, %d jobs", motion, len(jobs))
	}
	for i, job := range jobs {
		if job.Index != i || job.Step.Col != i || job.Step.Row != 0 {
			t.Fatalf("job %d out of order: %+v", i, job)
		}
	}
	if jobs[0].Step.Name != "me_nod_00" || jobs[9].Step.Name != "me_nod_09" {
		t.Fatalf("names = %q .. %q", jobs[0].Step.Name, jobs[9].Step.Name)
	}
	// pitch -15 against the default 20 degree range
	if jobs[2].Step.DY != -0.75 || jobs[2].Step.DX != 0 {
		t.Fatalf("step 2 = %+v", jobs[2].Step)
	}
	if !strings.Contains(jobs[2].Prompt, "tilted 15 degrees down") {
		t.Fatalf("prompt = %q", jobs[2].Prompt)
	}
	if !strings.Contains(jobs[0].Prompt, "Head facing the camera directly.") {
		t.Fatalf("neutral prompt = %q", jobs[0].Prompt)
	}
}

func TestPlanMotionDescribesExpressions(t *testing.T) {
	p := New(nil, DefaultFrameCostUSD)
	tests := []struct {
		motion string
		index  int
		want   []string
	}{
		{"wink", 3, []string{"Left eye fully closed in a wink.", "Smiling fully."}},
		{"look_around", 1, []string{"Eyes glancing up and to the left."}},
		{"look_around", 6, []string{"Eyes looking far to the right."}},
		{"shake_no", 2, []string{"turned 15 degrees to the left"}},
		{"surprise", 3, []string{"Eyebrows fully raised.", "Eyes fully wide open.", "Mouth fully open"}},
	}
	for _, tt := range tests {
		jobs, _, err := p.PlanMotion(tt.motion, "")
		if err != nil {
			t.Fatalf("PlanMotion(%s) error: %v", tt.motion, err)
		}
		prompt := jobs[tt.index].Prompt
		for _, want := range tt.want {
			if !strings.Contains(prompt, want) {
				t.Fatalf("%s[%d] prompt missing %q: %q", tt.motion, tt.index, want, prompt)
			}
		}
		if !strings.HasSuffix(prompt, consistencySuffix) {
			t.Fatalf("%s[%d] prompt lacks consistency suffix", tt.motion, tt.index)
		}
	}
}

func TestLookupMotion(t *testing.T) {
	m, err := LookupMotion(" ")
	if err != nil || m.Name != DefaultMotion {
		t.Fatalf("LookupMotion default = %+v, %v", m, err)
	}
	if _, err := LookupMotion("Shake_No"); err != nil {
		t.Fatalf("LookupMotion is case sensitive: %v", err)
	}
	_, err = LookupMotion("moonwalk")
	if !errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidGrid) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "look_around") {
		t.Fatalf("error should list motions: %v", err)
	}
}

func TestMotionsAreSortedAndPlayable(t *testing.T) {
	all := Motions()
	if len(all) != 7 {
		t.Fatalf("got %d motions", len(all))
	}
	for i, m := range all {
		if i > 0 && all[i-1].Name >= m.Name {
			t.Fatalf("motions not sorted: %s before %s", all[i-1].Name, m.Name)
		}
		if m.FPS <= 0 || len(m.Keyframes) == 0 || m.Description == "" {
			t.Fatalf("motion %s is incomplete: %+v", m.Name, m)
		}
	}
}

func TestEstimateFrames(t *testing.T) {
	est := New(nil, 0.002).EstimateFrames(10)
	if est.Frames != 10 || est.CostUSD != 0.02 {
		t.Fatalf("estimate = %+v", est)
	}
}
