// Package matcher finds the registered identity closest to a face signature.
package matcher

import (
	"github.com/kozaktomas/face-attendance/internal/signature"
)

const (
	// Unknown is the identity reported when no entry clears the threshold.
	Unknown = "Unknown"

	// DefaultThreshold is the similarity a match must strictly exceed.
	DefaultThreshold = 0.7
)

// Entry is one candidate identity with its stored signature.
type Entry struct {
	Identity  string
	Signature signature.Signature
}

// Result is the outcome of matching one signature.
// HasScore is false only when there was nothing to compare against.
type Result struct {
	Identity string
	Score    float64
	HasScore bool
}

// Matched reports whether the result names a registered identity.
func (r Result) Matched() bool {
	return r.Identity != Unknown
}

// Match compares sig against every entry and returns the best one if its
// cosine similarity is strictly greater than threshold. Ties keep the entry
// that appears first. Unmatched results still carry the best score seen.
func Match(sig signature.Signature, entries []Entry, threshold float64) Result {
	if len(entries) == 0 {
		return Result{Identity: Unknown}
	}

	best := -1
	bestScore := 0.0
	for i, e := range entries {
		score := signature.Cosine(sig, e.Signature)
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	if bestScore > threshold {
		return Result{Identity: entries[best].Identity, Score: bestScore, HasScore: true}
	}
	return Result{Identity: Unknown, Score: bestScore, HasScore: true}
}
