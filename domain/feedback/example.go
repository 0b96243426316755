package feedback

import "time"

// Kind classifies a single piece of user feedback on a search result.
type Kind string

// Kind values.
const (
	KindCorrect   Kind = "correct"
	KindIncorrect Kind = "incorrect"
	KindNewItem   Kind = "new_item"
)

// Example is a single durable training example: a user's verdict on one
// search result, or a proposal that the catalog is missing an item
// entirely. Every example references a real item_id, except KindNewItem
// examples which carry no target.
type Example struct {
	ID                        uint64
	CreatedAt                 time.Time
	PhotoFingerprint          string
	ImagePath                 string
	UserID                    string
	Username                  string
	FeedbackKind              Kind
	TargetItemID              *string
	SimilarityScore           *float64
	UserComment               string
	QualityRating             int // 1-5, 0 if unset
	ConsumedByTrainingSession *string
}

// Consumed reports whether this example has already been folded into a
// training session.
func (e Example) Consumed() bool {
	return e.ConsumedByTrainingSession != nil
}

// Filter narrows ListExamples queries.
type Filter struct {
	Kind              *Kind
	UnconsumedOnly    bool
	TargetItemID      *string
	UserID            *string
}

// Stats summarizes the unconsumed example pool, used to decide whether a
// retraining run is warranted.
type Stats struct {
	UnconsumedTotal     int
	UnconsumedPositive  int // KindCorrect
	UnconsumedNegative  int // KindIncorrect
}

// ShouldRetrainHint reports whether the unconsumed pool exceeds threshold
// and contains both positive and negative classes, per the retraining
// heuristic.
func (s Stats) ShouldRetrainHint(threshold int) bool {
	return s.UnconsumedTotal > threshold && s.UnconsumedPositive > 0 && s.UnconsumedNegative > 0
}
