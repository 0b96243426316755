package training

import "github.com/toolcat/visimatch/domain/feedback"

// Pair is a single labeled contrastive training pair: two examples' frozen
// embeddings and the similarity label the head should learn to predict.
type Pair struct {
	A, B  []float64
	Label float64
}

// BuildPairs constructs the contrastive training set from a slice of
// examples, per §4.5: every pair of correct examples sharing a
// target_item_id is a positive pair; every (correct, incorrect) pair
// across feedback kinds is a negative pair, regardless of item id.
// vectors supplies the frozen embedding for each example's id; examples
// with no entry are skipped (the embedder could not read their image).
func BuildPairs(examples []feedback.Example, vectors map[uint64][]float64) []Pair {
	var correct, incorrect []feedback.Example
	for _, e := range examples {
		if _, ok := vectors[e.ID]; !ok {
			continue
		}
		switch e.FeedbackKind {
		case feedback.KindCorrect:
			correct = append(correct, e)
		case feedback.KindIncorrect:
			incorrect = append(incorrect, e)
		}
	}

	var pairs []Pair
	for i := 0; i < len(correct); i++ {
		for j := i + 1; j < len(correct); j++ {
			if correct[i].TargetItemID == nil || correct[j].TargetItemID == nil {
				continue
			}
			if *correct[i].TargetItemID != *correct[j].TargetItemID {
				continue
			}
			pairs = append(pairs, Pair{
				A:     vectors[correct[i].ID],
				B:     vectors[correct[j].ID],
				Label: 1,
			})
		}
	}

	for _, c := range correct {
		for _, inc := range incorrect {
			pairs = append(pairs, Pair{
				A:     vectors[c.ID],
				B:     vectors[inc.ID],
				Label: 0,
			})
		}
	}

	return pairs
}

// SplitExamples splits examples 80/20 by insertion order (no shuffling),
// per §4.5's reproducibility requirement.
func SplitExamples(examples []feedback.Example) (train, validation []feedback.Example) {
	if len(examples) == 0 {
		return nil, nil
	}
	cut := (len(examples) * 8) / 10
	if cut == 0 {
		cut = 1
	}
	if cut >= len(examples) {
		cut = len(examples) - 1
	}
	return examples[:cut], examples[cut:]
}
