package training

import "github.com/toolcat/visimatch/domain/feedback"

// Session drives the epoch loop over a fixed set of contrastive pairs,
// holding the optimizer state across epochs.
type Session struct {
	head *Head
	opt  *adamW
	hp   feedback.Hyperparameters
}

// NewSession constructs a training run over head, which is mutated in
// place by RunEpoch.
func NewSession(head *Head, hp feedback.Hyperparameters) *Session {
	return &Session{
		head: head,
		opt:  newAdamW(head.numParams(), hp.LearningRate, hp.WeightDecay),
		hp:   hp,
	}
}

// RunEpoch performs one pass over pairs in fixed-size mini-batches,
// returning the mean training loss for the epoch. Pairs are consumed in
// the order given; no shuffling, per §4.5's reproducibility requirement.
func (s *Session) RunEpoch(pairs []Pair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	batchSize := s.hp.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var totalLoss float64
	var batches int
	for start := 0; start < len(pairs); start += batchSize {
		end := start + batchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		grad := make([]float64, s.head.numParams())
		var batchLoss float64
		for _, p := range batch {
			loss, g := s.head.gradient(p.A, p.B, p.Label)
			batchLoss += loss
			for i := range grad {
				grad[i] += g[i]
			}
		}
		n := float64(len(batch))
		for i := range grad {
			grad[i] /= n
		}

		params := s.head.params()
		s.opt.Step(params, grad)
		s.head.apply(params)

		totalLoss += batchLoss / n
		batches++
	}
	if batches == 0 {
		return 0
	}
	return totalLoss / float64(batches)
}

// Evaluate returns the fraction of pairs whose predicted label (head's
// probability thresholded at 0.5) matches the true label, per §4.5's
// accuracy definition.
func Evaluate(pairs []Pair, head Head) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var correct int
	for _, p := range pairs {
		predicted := 0.0
		if head.Predict(p.A, p.B) >= 0.5 {
			predicted = 1.0
		}
		if predicted == p.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(pairs))
}
