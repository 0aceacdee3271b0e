package batch

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/shipline/internal/tasklist"
	"github.com/ShayCichocki/shipline/pkg/models"
)

func parse(t *testing.T, doc string) *tasklist.Document {
	t.Helper()
	d, err := tasklist.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return d
}

func batchIDs(batches []Batch) [][]string {
	out := make([][]string, len(batches))
	for i, b := range batches {
		out[i] = b.IDs()
	}
	return out
}

func TestBatch_TDDScenario(t *testing.T) {
	d := parse(t, `T001 [RED] Write failing test for Message.validate_content
T002 [GREEN→T001] Implement Message.validate_content
T003 Create upload endpoint
T004 Add upload service
T005 Create upload form component
`)

	batches, err := New(Config{}).Batch(d.Tasks, d.Format)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	want := [][]string{{"T001"}, {"T002"}, {"T003", "T004"}, {"T005"}}
	if got := batchIDs(batches); !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
	for i, b := range batches {
		if b.Index != i {
			t.Errorf("batch %d has Index %d", i, b.Index)
		}
	}
	if !batches[1].Sequential() || batches[2].Sequential() {
		t.Error("only the GREEN batch should be sequential")
	}
	if batches[2].Domain() != models.DomainBackend {
		t.Errorf("batch 3 domain = %q, want backend", batches[2].Domain())
	}
}

func TestBatch_UserStoryScenario(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want [][]string
	}{
		{
			name: "same domain shares a batch",
			doc: `T001 [P1][US1] Create upload endpoint
T002 [P1][US1][P] Add upload handler
T003 [P2][US1] Add retention service
`,
			want: [][]string{{"T001", "T002"}, {"T003"}},
		},
		{
			name: "different domains split",
			doc: `T001 [P1][US1] Create upload endpoint
T002 [P1][US1][P] Create upload form component
T003 [P2][US1] Add retention service
`,
			want: [][]string{{"T001"}, {"T002"}, {"T003"}},
		},
		{
			name: "lower priority first regardless of document order",
			doc: `T001 [P2][US1] Add retention service
T002 [P1][US2] Add quota service
T003 [P1][US1] Create upload endpoint
`,
			want: [][]string{{"T003"}, {"T002"}, {"T001"}},
		},
		{
			name: "untagged tasks sort first",
			doc: `T001 [P1][US1] Create upload endpoint
T002 Add shared api client
`,
			want: [][]string{{"T002"}, {"T001"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parse(t, tt.doc)
			if d.Format != models.FormatUserStory {
				t.Fatalf("Format = %q, want user-story", d.Format)
			}
			batches, err := New(Config{}).Batch(d.Tasks, d.Format)
			if err != nil {
				t.Fatalf("Batch failed: %v", err)
			}
			if got := batchIDs(batches); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("batches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBatch_PartitionsNeverShareBatch(t *testing.T) {
	d := parse(t, `T001 [P1][US1] Create upload endpoint
T002 [P1][US2] Create quota endpoint
`)
	batches, err := New(Config{}).Batch(d.Tasks, d.Format)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %v", batchIDs(batches))
	}
	if batches[0].Story != 1 || batches[1].Story != 2 {
		t.Errorf("stories = %d, %d", batches[0].Story, batches[1].Story)
	}
}

func TestBatch_Cap(t *testing.T) {
	d := parse(t, `T001 Create a endpoint
T002 Create b endpoint
T003 Create c endpoint
T004 Create d endpoint
T005 Create e endpoint
`)

	tests := []struct {
		max  int
		want [][]string
	}{
		{0, [][]string{{"T001", "T002", "T003"}, {"T004", "T005"}}},
		{2, [][]string{{"T001", "T002"}, {"T003", "T004"}, {"T005"}}},
		{1, [][]string{{"T001"}, {"T002"}, {"T003"}, {"T004"}, {"T005"}}},
	}
	for _, tt := range tests {
		batches, err := New(Config{MaxSize: tt.max}).Batch(d.Tasks, d.Format)
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if got := batchIDs(batches); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("MaxSize %d: batches = %v, want %v", tt.max, got, tt.want)
		}
	}
}

func TestBatch_ChainSplitByPriority(t *testing.T) {
	d := parse(t, `T001 [P2][US1][RED] Write failing test for quota
T002 [P1][US1][GREEN→T001] Implement quota
`)
	_, err := New(Config{}).Batch(d.Tasks, d.Format)
	if !errors.Is(err, ErrChainSplit) {
		t.Errorf("expected ErrChainSplit, got %v", err)
	}
}

func TestBatch_UnknownFormat(t *testing.T) {
	if _, err := New(Config{}).Batch(nil, "kanban"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLocateAndFirstIncomplete(t *testing.T) {
	d := parse(t, `T001 [RED] Write failing test for parser
T002 [GREEN→T001] Implement parser
T003 Create upload endpoint
`)
	batches, err := New(Config{}).Batch(d.Tasks, d.Format)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	if idx, ok := Locate(batches, "T003"); !ok || idx != 2 {
		t.Errorf("Locate(T003) = %d, %v", idx, ok)
	}
	if _, ok := Locate(batches, "T999"); ok {
		t.Error("Locate(T999) should not be found")
	}

	if got := FirstIncomplete(batches, map[string]bool{"T001": true}); got != 1 {
		t.Errorf("FirstIncomplete = %d, want 1", got)
	}
	all := map[string]bool{"T001": true, "T002": true, "T003": true}
	if got := FirstIncomplete(batches, all); got != -1 {
		t.Errorf("FirstIncomplete(all) = %d, want -1", got)
	}
	if got := len(Flatten(batches)); got != 3 {
		t.Errorf("Flatten len = %d, want 3", got)
	}
}
