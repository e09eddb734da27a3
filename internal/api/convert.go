package api

import (
	"nexus/internal/deps"
	"nexus/internal/store"
	"nexus/internal/workflow"
)

// FromTask converts a task record to its API representation.
func FromTask(task *store.Task) *TaskSummary {
	if task == nil {
		return nil
	}
	dto := &TaskSummary{
		ID:        task.ID,
		Kind:      task.Kind,
		Status:    string(task.Status),
		Attempts:  task.Attempts,
		LastError: task.LastError,
	}
	if !task.UpdatedAt.IsZero() {
		dto.UpdatedAt = task.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromStatusSummary converts workflow status into the API DTO.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:   summary.Running,
		Workers:   summary.Workers,
		Active:    summary.Active,
		LastError: summary.LastError,
		LastTask:  FromTask(summary.LastTask),
		Stats:     summary.Stats,
	}
}

// FromDependencies converts binary checks into API DTOs.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}
