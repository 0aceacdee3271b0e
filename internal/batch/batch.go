// Package batch groups parsed tasks into ordered batches that are safe to run concurrently.
package batch

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// DefaultMaxSize is the batch cap used when Config.MaxSize is not set.
const DefaultMaxSize = 3

// ErrChainSplit indicates that grouping placed a chain member at or before its predecessor.
var ErrChainSplit = errors.New("TDD chain members out of batch order")

// Config controls batching.
type Config struct {
	// MaxSize caps the number of tasks in a parallel batch.
	MaxSize int
}

// Batch is a set of tasks dispatched together.
type Batch struct {
	// Index is the zero-based position in the plan.
	Index int `json:"index"`
	// Tasks are the batch members in document order.
	Tasks []models.Task `json:"tasks"`
	// Priority and Story identify the user-story partition, zero for TDD-phase plans.
	Priority int `json:"priority,omitempty"`
	Story    int `json:"story,omitempty"`
}

// IDs returns the member task identifiers.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// Domain returns the shared domain of the batch.
func (b Batch) Domain() models.Domain {
	if len(b.Tasks) == 0 {
		return models.DomainGeneral
	}
	return b.Tasks[0].Domain
}

// Sequential reports whether the batch is a lone GREEN or REFACTOR task.
func (b Batch) Sequential() bool {
	return len(b.Tasks) == 1 && !b.Tasks[0].Parallelizable
}

// Batcher groups tasks into batches.
type Batcher struct {
	maxSize int
}

// New creates a Batcher. A non-positive MaxSize selects DefaultMaxSize.
func New(cfg Config) *Batcher {
	size := cfg.MaxSize
	if size <= 0 {
		size = DefaultMaxSize
	}
	return &Batcher{maxSize: size}
}

// MaxSize returns the effective batch cap.
func (b *Batcher) MaxSize() int {
	return b.maxSize
}

// Batch partitions tasks into an ordered batch plan. The output depends only
// on the input order and contents.
func (b *Batcher) Batch(tasks []models.Task, format models.TaskFormat) ([]Batch, error) {
	var batches []Batch
	switch format {
	case models.FormatUserStory:
		for _, part := range partition(tasks) {
			for _, group := range b.group(part) {
				batches = append(batches, Batch{
					Tasks:    group,
					Priority: part[0].Priority,
					Story:    part[0].Story,
				})
			}
		}
	case models.FormatTDDPhase, "":
		for _, group := range b.group(tasks) {
			batches = append(batches, Batch{Tasks: group})
		}
	default:
		return nil, fmt.Errorf("unknown task format %q", format)
	}

	for i := range batches {
		batches[i].Index = i
	}
	if err := verifyChains(batches); err != nil {
		return nil, err
	}
	return batches, nil
}

// group applies the domain-grouping rule over tasks in order.
func (b *Batcher) group(tasks []models.Task) [][]models.Task {
	var (
		out [][]models.Task
		acc []models.Task
	)
	flush := func() {
		if len(acc) > 0 {
			out = append(out, acc)
			acc = nil
		}
	}

	for _, t := range tasks {
		if !t.Parallelizable {
			flush()
			out = append(out, []models.Task{t})
			continue
		}
		if len(acc) > 0 && (acc[0].Domain != t.Domain || len(acc) >= b.maxSize) {
			flush()
		}
		acc = append(acc, t)
	}
	flush()
	return out
}

// partition stable-sorts tasks by (priority, story) and splits them into runs
// sharing both values. Untagged tasks (zero) sort first.
func partition(tasks []models.Task) [][]models.Task {
	sorted := append([]models.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Story < sorted[j].Story
	})

	var parts [][]models.Task
	for i, t := range sorted {
		if i == 0 || t.Priority != sorted[i-1].Priority || t.Story != sorted[i-1].Story {
			parts = append(parts, nil)
		}
		parts[len(parts)-1] = append(parts[len(parts)-1], t)
	}
	return parts
}

// verifyChains checks that every referenced chain member sits in a strictly
// earlier batch than the task referencing it.
func verifyChains(batches []Batch) error {
	where := make(map[string]int)
	for _, b := range batches {
		for _, t := range b.Tasks {
			where[t.ID] = b.Index
		}
	}
	for _, b := range batches {
		for _, t := range b.Tasks {
			if t.Ref == "" {
				continue
			}
			refIdx, ok := where[t.Ref]
			if !ok {
				continue
			}
			if refIdx >= b.Index {
				return fmt.Errorf("%w: %s in batch %d, %s in batch %d", ErrChainSplit, t.Ref, refIdx+1, t.ID, b.Index+1)
			}
		}
	}
	return nil
}

// Locate returns the index of the batch holding id.
func Locate(batches []Batch, id string) (int, bool) {
	for _, b := range batches {
		for _, t := range b.Tasks {
			if t.ID == id {
				return b.Index, true
			}
		}
	}
	return -1, false
}

// FirstIncomplete returns the index of the first batch with a task missing from
// completed, or -1 when every task is complete.
func FirstIncomplete(batches []Batch, completed map[string]bool) int {
	for _, b := range batches {
		for _, t := range b.Tasks {
			if !completed[t.ID] {
				return b.Index
			}
		}
	}
	return -1
}

// Flatten returns every task of the plan in batch order.
func Flatten(batches []Batch) []models.Task {
	var out []models.Task
	for _, b := range batches {
		out = append(out, b.Tasks...)
	}
	return out
}
