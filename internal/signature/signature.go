// Package signature turns a cropped face image into a fixed-length,
// L2-normalized feature vector.
package signature

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

const (
	// Size is the length of every signature.
	Size = 128

	// sampleSide is the edge length of the square the crop is resampled to.
	sampleSide = 32
)

// Signature is a face feature vector of length Size.
type Signature []float32

// Encode resamples crop to 32x32, flattens it in B,G,R channel order and
// returns the unit-normalized vector fitted to Size. An all-zero crop (or an
// empty one) yields the zero vector.
func Encode(crop image.Image) Signature {
	if crop == nil || crop.Bounds().Empty() {
		return make(Signature, Size)
	}

	dst := image.NewRGBA(image.Rect(0, 0, sampleSide, sampleSide))
	draw.BiLinear.Scale(dst, dst.Bounds(), crop, crop.Bounds(), draw.Src, nil)

	raw := make([]float32, 0, sampleSide*sampleSide*3)
	for i := 0; i < len(dst.Pix); i += 4 {
		r, g, b := dst.Pix[i], dst.Pix[i+1], dst.Pix[i+2]
		raw = append(raw, float32(b), float32(g), float32(r))
	}

	normalize(raw)
	out := fit(raw, Size)
	// Truncation drops most of the vector, so the kept prefix is no longer unit length.
	normalize(out)
	return out
}

// normalize scales v in place to unit L2 norm. A zero vector is left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}

// fit truncates or zero-pads v to exactly n elements.
func fit(v []float32, n int) Signature {
	out := make(Signature, n)
	copy(out, v)
	return out
}

// Norm returns the L2 norm of s.
func (s Signature) Norm() float64 {
	var sum float64
	for _, x := range s {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Clone returns a copy of s that shares no memory with it.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	out := make(Signature, len(s))
	copy(out, s)
	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Mismatched
// lengths and zero vectors yield 0.
func Cosine(a, b Signature) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp floating point drift.
	return math.Max(-1, math.Min(1, sim))
}
