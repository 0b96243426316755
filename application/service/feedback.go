package service

import (
	"context"
	"log/slog"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/domain/pipeline"
	"github.com/toolcat/visimatch/infrastructure/session"
)

// DefaultRetrainThreshold is the unconsumed-example count above which
// ShouldRetrainHint reports true, provided both feedback classes are
// non-empty.
const DefaultRetrainThreshold = 50

// FeedbackSignal carries the transport-supplied context common to every
// verdict the Aggregator resolves: who issued it and which Search
// Session it refers to.
type FeedbackSignal struct {
	ShortID  string
	UserID   string
	Username string
	Comment  string
	Rating   int // 1-5, 0 means unset
}

// Aggregator is the Feedback Aggregator (C7): it resolves user verdicts
// against the Search Session they refer to and persists them through the
// Feedback Store. It never decides when retraining happens — that is an
// explicit Trainer invocation — but exposes ShouldRetrainHint so a caller
// can decide to trigger one.
type Aggregator struct {
	store     feedback.Store
	sessions  *session.Store
	threshold int
	logger    *slog.Logger
}

// NewAggregator constructs an Aggregator. threshold <= 0 defaults to
// DefaultRetrainThreshold. A nil logger defaults to slog.Default().
func NewAggregator(store feedback.Store, sessions *session.Store, threshold int, logger *slog.Logger) *Aggregator {
	if threshold <= 0 {
		threshold = DefaultRetrainThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, sessions: sessions, threshold: threshold, logger: logger}
}

// resolved is what a short_id (+ optional result_index) lookup yields
// against a live, expired, or absent Search Session.
type resolved struct {
	photoFingerprint string
	targetItemID     *string
	similarity       *float64
	orphaned         bool
}

// resolve looks up the session for shortID and, when resultIndex is in
// range, extracts the (item_id, similarity) pair the user is responding
// to. A missing session degrades to an orphaned signal rather than an
// error: feedback that arrives after TTL eviction is still worth
// recording, per §4.7. An out-of-range index on a live session keeps the
// session's photo fingerprint but carries no similarity score; in both
// cases the target id falls back to fallbackItemID when one is given.
func (a *Aggregator) resolve(shortID string, resultIndex int, fallbackItemID string) resolved {
	sess, ok := a.sessions.Get(shortID)
	if !ok {
		r := resolved{orphaned: true}
		if fallbackItemID != "" {
			r.targetItemID = &fallbackItemID
		}
		return r
	}

	r := resolved{photoFingerprint: sess.PhotoFingerprint}
	if resultIndex >= 0 && resultIndex < len(sess.Results) {
		res := sess.Results[resultIndex]
		itemID := res.ItemID
		sim := res.Similarity
		r.targetItemID = &itemID
		r.similarity = &sim
		return r
	}

	if fallbackItemID != "" {
		r.targetItemID = &fallbackItemID
	}
	return r
}

// MarkCorrect records a positive verdict on the item at resultIndex
// within the session named by signal.ShortID.
func (a *Aggregator) MarkCorrect(ctx context.Context, signal FeedbackSignal, resultIndex int, itemID string) (feedback.Example, error) {
	return a.recordVerdict(ctx, signal, resultIndex, itemID, feedback.KindCorrect)
}

// MarkIncorrect records a negative verdict on the item at resultIndex
// within the session named by signal.ShortID.
func (a *Aggregator) MarkIncorrect(ctx context.Context, signal FeedbackSignal, resultIndex int, itemID string) (feedback.Example, error) {
	return a.recordVerdict(ctx, signal, resultIndex, itemID, feedback.KindIncorrect)
}

func (a *Aggregator) recordVerdict(ctx context.Context, signal FeedbackSignal, resultIndex int, itemID string, kind feedback.Kind) (feedback.Example, error) {
	unlock := a.sessions.Lock(signal.ShortID)
	defer unlock()

	r := a.resolve(signal.ShortID, resultIndex, itemID)
	if r.orphaned {
		a.logger.Warn("feedback for unknown or expired session", slog.String("short_id", signal.ShortID))
	}

	e := feedback.Example{
		PhotoFingerprint: r.photoFingerprint,
		UserID:           signal.UserID,
		Username:         signal.Username,
		FeedbackKind:     kind,
		TargetItemID:     r.targetItemID,
		SimilarityScore:  r.similarity,
		UserComment:      signal.Comment,
		QualityRating:    signal.Rating,
	}
	return a.store.AddExample(ctx, e)
}

// ProposeNewItem records a new-item candidate the user believes is
// missing from the catalog. It carries no target_item_id — feedback_kind
// alone distinguishes it from a correct/incorrect verdict.
func (a *Aggregator) ProposeNewItem(ctx context.Context, signal FeedbackSignal, name, category, description string) (feedback.Example, error) {
	if name == "" {
		return feedback.Example{}, pipeline.New(pipeline.KindInternal, "propose_new_item requires a name")
	}

	unlock := a.sessions.Lock(signal.ShortID)
	defer unlock()

	r := a.resolve(signal.ShortID, -1, "")

	comment := name
	if category != "" {
		comment += " | " + category
	}
	if description != "" {
		comment += " | " + description
	}

	e := feedback.Example{
		PhotoFingerprint: r.photoFingerprint,
		UserID:           signal.UserID,
		Username:         signal.Username,
		FeedbackKind:     feedback.KindNewItem,
		UserComment:      comment,
		QualityRating:    signal.Rating,
	}
	return a.store.AddExample(ctx, e)
}

// SpecifyCorrect records a user-supplied correction: either a concrete
// item_id the user asserts is the right match, or free-text describing
// it, not tied to a particular result index.
func (a *Aggregator) SpecifyCorrect(ctx context.Context, signal FeedbackSignal, itemID, freeText string) (feedback.Example, error) {
	unlock := a.sessions.Lock(signal.ShortID)
	defer unlock()

	r := a.resolve(signal.ShortID, -1, itemID)

	comment := signal.Comment
	if freeText != "" {
		comment = freeText
	}

	e := feedback.Example{
		PhotoFingerprint: r.photoFingerprint,
		UserID:           signal.UserID,
		Username:         signal.Username,
		FeedbackKind:     feedback.KindCorrect,
		TargetItemID:     r.targetItemID,
		SimilarityScore:  r.similarity,
		UserComment:      comment,
		QualityRating:    signal.Rating,
	}
	return a.store.AddExample(ctx, e)
}

// ShouldRetrainHint reports whether the unconsumed feedback pool is large
// enough, and diverse enough, to be worth an operator-triggered retrain:
// total unconsumed examples exceed the configured threshold and both the
// positive and negative classes are non-empty.
func (a *Aggregator) ShouldRetrainHint(ctx context.Context) (bool, feedback.Stats, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return false, feedback.Stats{}, err
	}
	return stats.ShouldRetrainHint(a.threshold), stats, nil
}
