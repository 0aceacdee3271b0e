package tasklist

import "github.com/ShayCichocki/shipline/pkg/models"

// Pending filters out tasks recorded as completed in the completion ledger.
// Document order is preserved, and tasks that remain are reset to pending, so
// re-parsing on resume always yields the same input for the batcher.
func Pending(tasks []models.Task, completed map[string]bool) []models.Task {
	pending := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if completed[t.ID] {
			continue
		}
		t.Status = models.TaskStatusPending
		pending = append(pending, t)
	}
	return pending
}

// MarkCompleted returns a copy of tasks with ledger-completed entries marked completed.
func MarkCompleted(tasks []models.Task, completed map[string]bool) []models.Task {
	out := make([]models.Task, len(tasks))
	for i, t := range tasks {
		if completed[t.ID] {
			t.Status = models.TaskStatusCompleted
		}
		out[i] = t
	}
	return out
}
