package persistence

import (
	"encoding/json"
	"time"
)

// TaskModel represents a queued task in the database.
type TaskModel struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DedupKey  string          `gorm:"column:dedup_key;type:varchar(255);uniqueIndex;not null"`
	Type      string          `gorm:"column:type;type:varchar(255);index;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	Priority  int             `gorm:"column:priority;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name.
func (TaskModel) TableName() string { return "tasks" }

// TaskStatusModel represents task progress in the database.
type TaskStatusModel struct {
	ID            string    `gorm:"column:id;type:varchar(255);primaryKey;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
	Operation     string    `gorm:"column:operation;type:varchar(255);index;not null"`
	TrackableID   *int64    `gorm:"column:trackable_id;index"`
	TrackableType *string   `gorm:"column:trackable_type;type:varchar(255);index"`
	ParentID      *string   `gorm:"column:parent;type:varchar(255);index"`
	Message       string    `gorm:"column:message;type:text;default:''"`
	State         string    `gorm:"column:state;type:varchar(255);default:''"`
	Error         string    `gorm:"column:error;type:text;default:''"`
	Total         int       `gorm:"column:total;default:0"`
	Current       int       `gorm:"column:current;default:0"`
}

// TableName returns the table name.
func (TaskStatusModel) TableName() string { return "task_status" }

// FeedbackExampleModel represents a unit of user feedback in the database.
type FeedbackExampleModel struct {
	ID                        uint64  `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt                 time.Time `gorm:"column:created_at;autoCreateTime"`
	PhotoFingerprint          string  `gorm:"column:photo_fingerprint;type:varchar(64);index"`
	ImagePath                 string  `gorm:"column:image_path;type:text"`
	UserID                    string  `gorm:"column:user_id;type:varchar(255);index"`
	Username                  string  `gorm:"column:username;type:varchar(255)"`
	FeedbackKind              string  `gorm:"column:feedback_kind;type:varchar(32);index;not null"`
	TargetItemID              *string `gorm:"column:target_item_id;type:varchar(255);index"`
	SimilarityScore           *float64 `gorm:"column:similarity_score"`
	UserComment               string  `gorm:"column:user_comment;type:text"`
	QualityRating             int     `gorm:"column:quality_rating;default:0"`
	ConsumedByTrainingSession *string `gorm:"column:consumed_by_training_session;type:varchar(64);index"`
}

// TableName returns the table name.
func (FeedbackExampleModel) TableName() string { return "feedback_examples" }

// NewProductAnnotationModel represents an admin-reviewed proposal for a
// catalog item that did not previously exist.
type NewProductAnnotationModel struct {
	ID              uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	Name            string     `gorm:"column:name;type:varchar(255);not null"`
	Category        string     `gorm:"column:category;type:varchar(255)"`
	Description     string     `gorm:"column:description;type:text"`
	ApprovedByAdmin bool       `gorm:"column:approved_by_admin;default:false;index"`
	ApprovedBy      string     `gorm:"column:approved_by;type:varchar(255)"`
	ApprovedAt      *time.Time `gorm:"column:approved_at"`
}

// TableName returns the table name.
func (NewProductAnnotationModel) TableName() string { return "new_product_annotations" }

// TrainingSessionModel represents a completed or in-flight fine-tuning run.
type TrainingSessionModel struct {
	ID              string    `gorm:"column:id;type:varchar(64);primaryKey;not null"`
	ModelVersion    string    `gorm:"column:model_version;type:varchar(64);index;not null"`
	StartedAt       time.Time `gorm:"column:started_at;not null"`
	DurationSeconds float64   `gorm:"column:duration_seconds;not null"`
	NumExamples     int       `gorm:"column:num_examples;not null"`
	NumPositive     int       `gorm:"column:num_positive;not null"`
	NumNegative     int       `gorm:"column:num_negative;not null"`
	AccuracyBefore  float64   `gorm:"column:accuracy_before"`
	AccuracyAfter   float64   `gorm:"column:accuracy_after"`
	Epochs          int       `gorm:"column:epochs"`
	BatchSize       int       `gorm:"column:batch_size"`
	LearningRate    float64   `gorm:"column:learning_rate"`
	WeightDecay     float64   `gorm:"column:weight_decay"`
	IsActive        bool      `gorm:"column:is_active;default:false;index"`
}

// TableName returns the table name.
func (TrainingSessionModel) TableName() string { return "training_sessions" }

// ModelBackupModel records a snapshot of a model artifact taken before a
// retraining run, so it can later be restored.
type ModelBackupModel struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	ModelVersion string    `gorm:"column:model_version;type:varchar(64);index;not null"`
	Origin       string    `gorm:"column:origin;type:varchar(32);not null"`
	Path         string    `gorm:"column:path;type:text;not null"`
	SizeBytes    int64     `gorm:"column:size_bytes"`
	Checksum     string    `gorm:"column:checksum;type:varchar(128)"`
}

// TableName returns the table name.
func (ModelBackupModel) TableName() string { return "model_backups" }
