package matcher

import (
	"errors"
	"testing"
	"time"
)

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		want      string
	}{
		{
			name: "Full identity",
			candidate: Candidate{
				Set: "BS", Number: "015", SetSize: "102", Regulation: "F", Name: "Venusaur",
			},
			want: "BS|015/102|F|Venusaur",
		},
		{
			name:      "Empty candidate is all wildcards",
			candidate: Candidate{},
			want:      "*|*|*|*",
		},
		{
			name:      "Number without set size",
			candidate: Candidate{Number: "007"},
			want:      "*|007|*|*",
		},
		{
			name:      "Set size without number stays wildcard",
			candidate: Candidate{SetSize: "102"},
			want:      "*|*|*|*",
		},
		{
			name:      "Set only, from icon correlation",
			candidate: Candidate{Set: "SSH"},
			want:      "SSH|*|*|*",
		},
		{
			name:      "Name only, from text matching",
			candidate: Candidate{Name: "Pikachu"},
			want:      "*|*|*|Pikachu",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.candidate.CanonicalKey(); got != tt.want {
				t.Errorf("CanonicalKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"Negative clamps to zero", -0.5, 0},
		{"Zero stays", 0, 0},
		{"In range stays", 0.42, 0.42},
		{"One stays", 1, 1},
		{"Above one clamps", 1.7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clamp(tt.in); got != tt.want {
				t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResultFinishClampsConfidence(t *testing.T) {
	r := NewResult(MethodHash)
	r.Confidence = 1.4
	r.Best = &Candidate{Set: "BS", Confidence: -0.2}
	r.Finish(time.Now().Add(-time.Millisecond))

	if r.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", r.Confidence)
	}
	if r.Best.Confidence != 0 {
		t.Errorf("Best.Confidence = %v, want 0", r.Best.Confidence)
	}
	if r.ProcessingTime <= 0 {
		t.Errorf("ProcessingTime = %v, want > 0", r.ProcessingTime)
	}
}

func TestResultFail(t *testing.T) {
	r := NewResult(MethodIcon)
	r.Confidence = 0.8
	r.Best = &Candidate{Set: "SSH"}
	r.Fail("crop failed", errors.New("rectangle outside image bounds"))

	if r.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", r.Confidence)
	}
	if r.Best != nil {
		t.Errorf("Best = %+v, want nil", r.Best)
	}
	note, ok := r.Metadata["error"].(string)
	if !ok || note == "" {
		t.Errorf("expected error note in metadata, got %v", r.Metadata["error"])
	}
}
