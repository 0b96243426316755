package persistence

import (
	"encoding/json"

	"github.com/toolcat/visimatch/domain/task"
)

// TaskMapper converts between task.Task and its GORM row.
type TaskMapper struct{}

// ToDomain converts a TaskModel to a task.Task.
func (TaskMapper) ToDomain(m TaskModel) task.Task {
	var payload map[string]any
	if len(m.Payload) > 0 {
		_ = json.Unmarshal(m.Payload, &payload)
	}
	return task.NewTaskWithID(
		m.ID,
		m.DedupKey,
		task.Operation(m.Type),
		m.Priority,
		payload,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

// ToModel converts a task.Task to a TaskModel.
func (TaskMapper) ToModel(t task.Task) TaskModel {
	payload, _ := t.PayloadJSON()
	return TaskModel{
		ID:       t.ID(),
		DedupKey: t.DedupKey(),
		Type:     t.Operation().String(),
		Payload:  payload,
		Priority: t.Priority(),
	}
}

// TaskStatusMapper converts between task.Status and its GORM row.
type TaskStatusMapper struct{}

// ToDomain converts a TaskStatusModel to a task.Status, without
// reconstructing the parent chain (see LoadWithHierarchy for that).
func (TaskStatusMapper) ToDomain(m TaskStatusModel) task.Status {
	var trackableID int64
	var trackableType task.TrackableType
	if m.TrackableID != nil {
		trackableID = *m.TrackableID
	}
	if m.TrackableType != nil {
		trackableType = task.TrackableType(*m.TrackableType)
	}
	return task.NewStatusFull(
		m.ID,
		task.ReportingState(m.State),
		task.Operation(m.Operation),
		m.Message,
		m.CreatedAt,
		m.UpdatedAt,
		m.Total,
		m.Current,
		m.Error,
		nil,
		trackableID,
		trackableType,
	)
}

// ToModel converts a task.Status to a TaskStatusModel.
func (TaskStatusMapper) ToModel(s task.Status) TaskStatusModel {
	m := TaskStatusModel{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		UpdatedAt: s.UpdatedAt(),
		Operation: s.Operation().String(),
		Message:   s.Message(),
		State:     string(s.State()),
		Error:     s.Error(),
		Total:     s.Total(),
		Current:   s.Current(),
	}
	if s.TrackableID() != 0 {
		id := s.TrackableID()
		m.TrackableID = &id
	}
	if s.TrackableType() != "" {
		t := string(s.TrackableType())
		m.TrackableType = &t
	}
	if parent := s.Parent(); parent != nil {
		pid := parent.ID()
		m.ParentID = &pid
	}
	return m
}
