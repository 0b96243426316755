// Package training implements the Trainer's learnable surface: a small
// similarity head fine-tuned on top of the frozen vision encoder's
// embeddings, plus the contrastive pair construction and epoch loop that
// train it. The encoder itself (C1) is a compiled ONNX graph with no
// gradient support available in this stack, so "fine-tuning" here means
// adapting a lightweight per-dimension reweighting and logit calibration
// on top of its fixed output, not backpropagating through the backbone.
package training

import "math"

// Head is the learned similarity head applied to a pair of frozen
// embeddings before they are compared. Scale reweights each dimension of
// the embedding (an adapter over the frozen encoder output); Temperature
// and Bias calibrate the resulting cosine score into a logit, the same
// role CLIP's learned logit scale plays.
type Head struct {
	Scale       []float64
	Temperature float64
	Bias        float64
}

// NewIdentityHead returns a Head with no effect: uniform scaling and a
// temperature of 10 (CLIP's conventional initial logit scale).
func NewIdentityHead(dim int) Head {
	scale := make([]float64, dim)
	for i := range scale {
		scale[i] = 1.0
	}
	return Head{Scale: scale, Temperature: 10.0}
}

// numParams is the size of the flattened parameter vector: one scale per
// dimension plus temperature and bias.
func (h Head) numParams() int { return len(h.Scale) + 2 }

// params flattens the head into a single slice for the optimizer.
func (h Head) params() []float64 {
	p := make([]float64, h.numParams())
	copy(p, h.Scale)
	p[len(h.Scale)] = h.Temperature
	p[len(h.Scale)+1] = h.Bias
	return p
}

// apply writes a flattened parameter vector back into the head.
func (h *Head) apply(p []float64) {
	copy(h.Scale, p[:len(h.Scale)])
	h.Temperature = p[len(h.Scale)]
	h.Bias = p[len(h.Scale)+1]
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// scoreAndGrad computes the scaled cosine score between a and b along
// with its gradient with respect to each Scale entry. a and b must be
// equal-length raw embedding values (not necessarily unit-norm after
// scaling).
func (h Head) scoreAndGrad(a, b []float64) (score float64, dScore []float64) {
	n := len(a)
	pa := make([]float64, n)
	pb := make([]float64, n)
	var dot, sqA, sqB float64
	for i := 0; i < n; i++ {
		pa[i] = h.Scale[i] * a[i]
		pb[i] = h.Scale[i] * b[i]
		dot += pa[i] * pb[i]
		sqA += pa[i] * pa[i]
		sqB += pb[i] * pb[i]
	}
	normA := math.Sqrt(sqA)
	normB := math.Sqrt(sqB)
	if normA == 0 || normB == 0 {
		return 0, make([]float64, n)
	}
	denom := normA * normB
	score = dot / denom

	dScore = make([]float64, n)
	for i := 0; i < n; i++ {
		dDot := 2 * h.Scale[i] * a[i] * b[i]
		dNormA := h.Scale[i] * a[i] * a[i] / normA
		dNormB := h.Scale[i] * b[i] * b[i] / normB
		dScore[i] = dDot/denom - score*(dNormA/normA+dNormB/normB)
	}
	return score, dScore
}

// Predict returns the head's probability that a and b refer to the same
// catalog item.
func (h Head) Predict(a, b []float64) float64 {
	score, _ := h.scoreAndGrad(a, b)
	return sigmoid(h.Temperature*score + h.Bias)
}

// gradient returns the BCE loss and its gradient with respect to the
// flattened parameter vector for a single labeled pair.
func (h Head) gradient(a, b []float64, label float64) (loss float64, grad []float64) {
	score, dScore := h.scoreAndGrad(a, b)
	logit := h.Temperature*score + h.Bias
	prob := sigmoid(logit)

	const eps = 1e-12
	p := math.Min(math.Max(prob, eps), 1-eps)
	loss = -(label*math.Log(p) + (1-label)*math.Log(1-p))

	dLogit := prob - label // d(BCE)/d(logit) for sigmoid outputs
	grad = make([]float64, h.numParams())
	for i, ds := range dScore {
		grad[i] = dLogit * h.Temperature * ds
	}
	grad[len(h.Scale)] = dLogit * score // d/dTemperature
	grad[len(h.Scale)+1] = dLogit       // d/dBias
	return loss, grad
}
