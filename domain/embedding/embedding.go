// Package embedding defines the unit-norm vector type shared by every
// component that produces, stores, or compares catalog and query vectors.
package embedding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// NormTolerance is the maximum allowed deviation of a vector's L2 norm
// from 1.0 before it is rejected as invalid.
const NormTolerance = 1e-5

// ErrDimensionMismatch indicates two embeddings have incompatible dimensions.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// ErrNotUnitNorm indicates a vector's L2 norm deviates from 1 by more than
// NormTolerance.
var ErrNotUnitNorm = errors.New("embedding: vector is not unit-norm")

// ErrEmpty indicates a vector has zero dimensions.
var ErrEmpty = errors.New("embedding: vector is empty")

// Embedding is a unit-norm D-dimensional real-valued vector. The zero value
// is not a valid Embedding; construct one with New or FromBytes.
type Embedding struct {
	values []float64
}

// New constructs an Embedding from raw values, verifying the unit-norm
// invariant. Callers that computed an unnormalized vector should call
// Normalize first.
func New(values []float64) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, ErrEmpty
	}
	cp := make([]float64, len(values))
	copy(cp, values)
	e := Embedding{values: cp}
	if !e.isUnitNorm() {
		return Embedding{}, fmt.Errorf("%w: norm=%f", ErrNotUnitNorm, e.Norm())
	}
	return e, nil
}

// Normalize constructs a unit-norm Embedding from arbitrary (non-zero)
// values by dividing by their L2 norm. Used after averaging raw model
// outputs or fusing image/text vectors, where the input is not yet
// guaranteed unit-norm.
func Normalize(values []float64) (Embedding, error) {
	if len(values) == 0 {
		return Embedding{}, ErrEmpty
	}
	var sumSq float64
	for _, v := range values {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return Embedding{}, errors.New("embedding: cannot normalize a zero vector")
	}
	cp := make([]float64, len(values))
	for i, v := range values {
		cp[i] = v / norm
	}
	return Embedding{values: cp}, nil
}

// Dim returns the number of dimensions D.
func (e Embedding) Dim() int { return len(e.values) }

// Values returns a defensive copy of the underlying vector.
func (e Embedding) Values() []float64 {
	cp := make([]float64, len(e.values))
	copy(cp, e.values)
	return cp
}

// Norm returns the L2 norm of the vector.
func (e Embedding) Norm() float64 {
	var sumSq float64
	for _, v := range e.values {
		sumSq += v * v
	}
	return math.Sqrt(sumSq)
}

func (e Embedding) isUnitNorm() bool {
	return math.Abs(e.Norm()-1.0) <= NormTolerance
}

// Dot returns the dot product of two embeddings, which equals cosine
// similarity because both operands are unit-norm.
func (e Embedding) Dot(o Embedding) (float64, error) {
	if e.Dim() != o.Dim() {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, e.Dim(), o.Dim())
	}
	var sum float64
	for i, v := range e.values {
		sum += v * o.values[i]
	}
	return sum, nil
}

// Bytes serializes the vector as a compact little-endian float32 byte
// sequence, per the on-disk vector column format.
func (e Embedding) Bytes() []byte {
	buf := make([]byte, 4*len(e.values))
	for i, v := range e.values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

// FromBytes decodes a little-endian float32 byte sequence into an
// Embedding, verifying the unit-norm invariant.
func FromBytes(b []byte) (Embedding, error) {
	if len(b) == 0 {
		return Embedding{}, ErrEmpty
	}
	if len(b)%4 != 0 {
		return Embedding{}, fmt.Errorf("embedding: byte length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4:])
		values[i] = float64(math.Float32frombits(bits))
	}
	return New(values)
}

// Fuse combines an image embedding and a text embedding at the given
// weights (0.8/0.2 for image/text, per the catalog-insertion fusion rule),
// renormalizing the result to unit norm.
func Fuse(image, text Embedding, imageWeight, textWeight float64) (Embedding, error) {
	if image.Dim() != text.Dim() {
		return Embedding{}, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, image.Dim(), text.Dim())
	}
	fused := make([]float64, image.Dim())
	for i := range fused {
		fused[i] = imageWeight*image.values[i] + textWeight*text.values[i]
	}
	return Normalize(fused)
}

// Average combines N embeddings by averaging component-wise and
// renormalizing, per the Embedder's N=3 forward-pass stability averaging.
func Average(embeddings []Embedding) (Embedding, error) {
	if len(embeddings) == 0 {
		return Embedding{}, ErrEmpty
	}
	dim := embeddings[0].Dim()
	sum := make([]float64, dim)
	for _, e := range embeddings {
		if e.Dim() != dim {
			return Embedding{}, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, dim, e.Dim())
		}
		for i, v := range e.values {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] /= float64(len(embeddings))
	}
	return Normalize(sum)
}
