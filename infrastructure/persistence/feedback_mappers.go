package persistence

import (
	"github.com/toolcat/visimatch/domain/feedback"
)

// FeedbackExampleMapper converts between feedback.Example and its GORM row.
type FeedbackExampleMapper struct{}

func (FeedbackExampleMapper) ToDomain(m FeedbackExampleModel) feedback.Example {
	return feedback.Example{
		ID:                        m.ID,
		CreatedAt:                 m.CreatedAt,
		PhotoFingerprint:          m.PhotoFingerprint,
		ImagePath:                 m.ImagePath,
		UserID:                    m.UserID,
		Username:                  m.Username,
		FeedbackKind:              feedback.Kind(m.FeedbackKind),
		TargetItemID:              m.TargetItemID,
		SimilarityScore:           m.SimilarityScore,
		UserComment:               m.UserComment,
		QualityRating:             m.QualityRating,
		ConsumedByTrainingSession: m.ConsumedByTrainingSession,
	}
}

func (FeedbackExampleMapper) ToModel(e feedback.Example) FeedbackExampleModel {
	return FeedbackExampleModel{
		ID:                        e.ID,
		PhotoFingerprint:          e.PhotoFingerprint,
		ImagePath:                 e.ImagePath,
		UserID:                    e.UserID,
		Username:                  e.Username,
		FeedbackKind:              string(e.FeedbackKind),
		TargetItemID:              e.TargetItemID,
		SimilarityScore:           e.SimilarityScore,
		UserComment:               e.UserComment,
		QualityRating:             e.QualityRating,
		ConsumedByTrainingSession: e.ConsumedByTrainingSession,
	}
}

// NewProductAnnotationMapper converts between feedback.NewProductAnnotation
// and its GORM row.
type NewProductAnnotationMapper struct{}

func (NewProductAnnotationMapper) ToDomain(m NewProductAnnotationModel) feedback.NewProductAnnotation {
	return feedback.NewProductAnnotation{
		ID:              m.ID,
		CreatedAt:       m.CreatedAt,
		Name:            m.Name,
		Category:        m.Category,
		Description:     m.Description,
		ApprovedByAdmin: m.ApprovedByAdmin,
		ApprovedBy:      m.ApprovedBy,
		ApprovedAt:      m.ApprovedAt,
	}
}

func (NewProductAnnotationMapper) ToModel(a feedback.NewProductAnnotation) NewProductAnnotationModel {
	return NewProductAnnotationModel{
		ID:              a.ID,
		Name:            a.Name,
		Category:        a.Category,
		Description:     a.Description,
		ApprovedByAdmin: a.ApprovedByAdmin,
		ApprovedBy:      a.ApprovedBy,
		ApprovedAt:      a.ApprovedAt,
	}
}

// TrainingSessionMapper converts between feedback.TrainingSession and its
// GORM row. Hyperparameters are flattened into individual columns rather
// than a JSON blob, matching how the rest of the schema stores scalars.
type TrainingSessionMapper struct{}

func (TrainingSessionMapper) ToDomain(m TrainingSessionModel) feedback.TrainingSession {
	return feedback.TrainingSession{
		ID:             m.ID,
		ModelVersion:   m.ModelVersion,
		StartedAt:      m.StartedAt,
		Duration:       secondsToDuration(m.DurationSeconds),
		NumExamples:    m.NumExamples,
		NumPositive:    m.NumPositive,
		NumNegative:    m.NumNegative,
		AccuracyBefore: m.AccuracyBefore,
		AccuracyAfter:  m.AccuracyAfter,
		Hyperparameters: feedback.Hyperparameters{
			Epochs:       m.Epochs,
			BatchSize:    m.BatchSize,
			LearningRate: m.LearningRate,
			WeightDecay:  m.WeightDecay,
		},
		IsActive: m.IsActive,
	}
}

func (TrainingSessionMapper) ToModel(s feedback.TrainingSession) TrainingSessionModel {
	return TrainingSessionModel{
		ID:              s.ID,
		ModelVersion:    s.ModelVersion,
		StartedAt:       s.StartedAt,
		DurationSeconds: s.Duration.Seconds(),
		NumExamples:     s.NumExamples,
		NumPositive:     s.NumPositive,
		NumNegative:     s.NumNegative,
		AccuracyBefore:  s.AccuracyBefore,
		AccuracyAfter:   s.AccuracyAfter,
		Epochs:          s.Hyperparameters.Epochs,
		BatchSize:       s.Hyperparameters.BatchSize,
		LearningRate:    s.Hyperparameters.LearningRate,
		WeightDecay:     s.Hyperparameters.WeightDecay,
		IsActive:        s.IsActive,
	}
}

// ModelBackupMapper converts between feedback.ModelBackupRecord and its GORM row.
type ModelBackupMapper struct{}

func (ModelBackupMapper) ToDomain(m ModelBackupModel) feedback.ModelBackupRecord {
	return feedback.ModelBackupRecord{
		ID:           m.ID,
		CreatedAt:    m.CreatedAt,
		ModelVersion: m.ModelVersion,
		Origin:       feedback.BackupOrigin(m.Origin),
		Path:         m.Path,
		SizeBytes:    m.SizeBytes,
		Checksum:     m.Checksum,
	}
}

func (ModelBackupMapper) ToModel(r feedback.ModelBackupRecord) ModelBackupModel {
	return ModelBackupModel{
		ID:           r.ID,
		ModelVersion: r.ModelVersion,
		Origin:       string(r.Origin),
		Path:         r.Path,
		SizeBytes:    r.SizeBytes,
		Checksum:     r.Checksum,
	}
}
