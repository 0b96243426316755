package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/toolcat/visimatch/domain/feedback"
	"github.com/toolcat/visimatch/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// FeedbackStore implements feedback.Store using GORM.
type FeedbackStore struct {
	db            database.Database
	exampleMapper FeedbackExampleMapper
	productMapper NewProductAnnotationMapper
	sessionMapper TrainingSessionMapper
	backupMapper  ModelBackupMapper
}

// NewFeedbackStore creates a new FeedbackStore.
func NewFeedbackStore(db database.Database) FeedbackStore {
	return FeedbackStore{
		db:            db,
		exampleMapper: FeedbackExampleMapper{},
		productMapper: NewProductAnnotationMapper{},
		sessionMapper: TrainingSessionMapper{},
		backupMapper:  ModelBackupMapper{},
	}
}

var _ feedback.Store = FeedbackStore{}

// AddExample inserts a new feedback example.
func (s FeedbackStore) AddExample(ctx context.Context, e feedback.Example) (feedback.Example, error) {
	model := s.exampleMapper.ToModel(e)
	if result := s.db.Session(ctx).Create(&model); result.Error != nil {
		return feedback.Example{}, fmt.Errorf("add feedback example: %w", result.Error)
	}
	return s.exampleMapper.ToDomain(model), nil
}

// ListExamples retrieves feedback examples matching filter.
func (s FeedbackStore) ListExamples(ctx context.Context, filter feedback.Filter) ([]feedback.Example, error) {
	db := s.db.Session(ctx).Model(&FeedbackExampleModel{})

	if filter.Kind != nil {
		db = db.Where("feedback_kind = ?", string(*filter.Kind))
	}
	if filter.UnconsumedOnly {
		db = db.Where("consumed_by_training_session IS NULL")
	}
	if filter.TargetItemID != nil {
		db = db.Where("target_item_id = ?", *filter.TargetItemID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}

	var models []FeedbackExampleModel
	if result := db.Order("created_at ASC").Find(&models); result.Error != nil {
		return nil, fmt.Errorf("list feedback examples: %w", result.Error)
	}

	examples := make([]feedback.Example, len(models))
	for i, m := range models {
		examples[i] = s.exampleMapper.ToDomain(m)
	}
	return examples, nil
}

// MarkConsumed sets consumed_by_training_session on every id in ids.
// Already-consumed rows are left untouched, making repeated calls a no-op.
func (s FeedbackStore) MarkConsumed(ctx context.Context, ids []uint64, sessionID string) error {
	if len(ids) == 0 {
		return nil
	}
	result := s.db.Session(ctx).Model(&FeedbackExampleModel{}).
		Where("id IN ? AND consumed_by_training_session IS NULL", ids).
		Update("consumed_by_training_session", sessionID)
	if result.Error != nil {
		return fmt.Errorf("mark feedback examples consumed: %w", result.Error)
	}
	return nil
}

// AddNewProduct inserts a new-product annotation proposal.
func (s FeedbackStore) AddNewProduct(ctx context.Context, a feedback.NewProductAnnotation) (feedback.NewProductAnnotation, error) {
	model := s.productMapper.ToModel(a)
	if result := s.db.Session(ctx).Create(&model); result.Error != nil {
		return feedback.NewProductAnnotation{}, fmt.Errorf("add new product annotation: %w", result.Error)
	}
	return s.productMapper.ToDomain(model), nil
}

// ApproveNewProduct marks a new-product annotation approved by adminID.
func (s FeedbackStore) ApproveNewProduct(ctx context.Context, id uint64, adminID string) (feedback.NewProductAnnotation, error) {
	var model NewProductAnnotationModel
	if result := s.db.Session(ctx).Where("id = ?", id).First(&model); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return feedback.NewProductAnnotation{}, fmt.Errorf("new product annotation %d: not found", id)
		}
		return feedback.NewProductAnnotation{}, fmt.Errorf("approve new product: %w", result.Error)
	}

	approved := s.productMapper.ToDomain(model).Approve(adminID, time.Now())
	updated := s.productMapper.ToModel(approved)
	if result := s.db.Session(ctx).Save(&updated); result.Error != nil {
		return feedback.NewProductAnnotation{}, fmt.Errorf("approve new product: %w", result.Error)
	}
	return s.productMapper.ToDomain(updated), nil
}

// LogTrainingSession records a training session. If s.IsActive, every other
// session's IsActive flag is cleared in the same transaction.
func (s FeedbackStore) LogTrainingSession(ctx context.Context, session feedback.TrainingSession) error {
	model := s.sessionMapper.ToModel(session)

	err := s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		if session.IsActive {
			if err := tx.Model(&TrainingSessionModel{}).
				Where("id != ?", session.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("log training session: %w", err)
	}
	return nil
}

// LogModelBackup records a model backup event.
func (s FeedbackStore) LogModelBackup(ctx context.Context, r feedback.ModelBackupRecord) error {
	model := s.backupMapper.ToModel(r)
	if result := s.db.Session(ctx).Create(&model); result.Error != nil {
		return fmt.Errorf("log model backup: %w", result.Error)
	}
	return nil
}

// ListBackups retrieves all model backup records, newest first.
func (s FeedbackStore) ListBackups(ctx context.Context) ([]feedback.ModelBackupRecord, error) {
	var models []ModelBackupModel
	if result := s.db.Session(ctx).Order("created_at DESC").Find(&models); result.Error != nil {
		return nil, fmt.Errorf("list model backups: %w", result.Error)
	}
	records := make([]feedback.ModelBackupRecord, len(models))
	for i, m := range models {
		records[i] = s.backupMapper.ToDomain(m)
	}
	return records, nil
}

// Stats summarizes the unconsumed example pool.
func (s FeedbackStore) Stats(ctx context.Context) (feedback.Stats, error) {
	var total, positive, negative int64

	base := s.db.Session(ctx).Model(&FeedbackExampleModel{}).Where("consumed_by_training_session IS NULL")
	if result := base.Count(&total); result.Error != nil {
		return feedback.Stats{}, fmt.Errorf("count unconsumed examples: %w", result.Error)
	}

	positiveDB := s.db.Session(ctx).Model(&FeedbackExampleModel{}).
		Where("consumed_by_training_session IS NULL AND feedback_kind = ?", string(feedback.KindCorrect))
	if result := positiveDB.Count(&positive); result.Error != nil {
		return feedback.Stats{}, fmt.Errorf("count unconsumed positive examples: %w", result.Error)
	}

	negativeDB := s.db.Session(ctx).Model(&FeedbackExampleModel{}).
		Where("consumed_by_training_session IS NULL AND feedback_kind = ?", string(feedback.KindIncorrect))
	if result := negativeDB.Count(&negative); result.Error != nil {
		return feedback.Stats{}, fmt.Errorf("count unconsumed negative examples: %w", result.Error)
	}

	return feedback.Stats{
		UnconsumedTotal:    int(total),
		UnconsumedPositive: int(positive),
		UnconsumedNegative: int(negative),
	}, nil
}
