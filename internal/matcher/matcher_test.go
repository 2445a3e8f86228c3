package matcher

import (
	"math"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/signature"
)

// withCosine returns a unit vector whose cosine with the first basis vector is c.
func withCosine(c float64) signature.Signature {
	s := make(signature.Signature, signature.Size)
	s[0] = float32(c)
	s[1] = float32(math.Sqrt(1 - c*c))
	return s
}

func basis(i int) signature.Signature {
	s := make(signature.Signature, signature.Size)
	s[i] = 1
	return s
}

func TestMatch_EmptyRegistry(t *testing.T) {
	got := Match(basis(0), nil, DefaultThreshold)
	if got.Identity != Unknown {
		t.Errorf("Identity = %q, want %q", got.Identity, Unknown)
	}
	if got.HasScore {
		t.Error("expected no score for empty registry")
	}
	if got.Matched() {
		t.Error("Matched() = true for empty registry")
	}
}

func TestMatch_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		cosine    float64
		wantID    string
		wantScore float64
	}{
		{"below threshold", 0.65, Unknown, 0.65},
		{"above threshold", 0.71, "Bob", 0.71},
		{"identical", 1.0, "Bob", 1.0},
	}

	entries := []Entry{{Identity: "Bob", Signature: basis(0)}}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Match(withCosine(tc.cosine), entries, DefaultThreshold)
			if got.Identity != tc.wantID {
				t.Errorf("Identity = %q, want %q", got.Identity, tc.wantID)
			}
			if !got.HasScore {
				t.Fatal("expected a score")
			}
			if math.Abs(got.Score-tc.wantScore) > 1e-6 {
				t.Errorf("Score = %f, want %f", got.Score, tc.wantScore)
			}
		})
	}
}

func TestMatch_ExactlyThresholdIsUnknown(t *testing.T) {
	entries := []Entry{{Identity: "Bob", Signature: signature.Signature{1, 0}}}
	got := Match(signature.Signature{1, 0}, entries, 1.0)
	if got.Matched() {
		t.Errorf("score equal to threshold must not match, got %q", got.Identity)
	}
}

func TestMatch_PicksBest(t *testing.T) {
	entries := []Entry{
		{Identity: "Alice", Signature: withCosine(0.8)},
		{Identity: "Bob", Signature: withCosine(0.95)},
		{Identity: "Carol", Signature: basis(5)},
	}
	got := Match(basis(0), entries, DefaultThreshold)
	if got.Identity != "Bob" {
		t.Errorf("Identity = %q, want Bob", got.Identity)
	}
}

func TestMatch_TieKeepsFirst(t *testing.T) {
	entries := []Entry{
		{Identity: "Alice", Signature: basis(0)},
		{Identity: "Bob", Signature: basis(0)},
	}
	for range 10 {
		if got := Match(basis(0), entries, DefaultThreshold); got.Identity != "Alice" {
			t.Fatalf("Identity = %q, want Alice", got.Identity)
		}
	}
}

func TestMatch_NegativeBestScoreReported(t *testing.T) {
	neg := basis(0)
	neg[0] = -1
	got := Match(basis(0), []Entry{{Identity: "Bob", Signature: neg}}, DefaultThreshold)
	if got.Matched() {
		t.Fatal("opposite vectors must not match")
	}
	if got.Score != -1 {
		t.Errorf("Score = %f, want -1", got.Score)
	}
}
