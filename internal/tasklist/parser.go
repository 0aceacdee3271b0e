// Package tasklist parses annotated task-list documents into structured tasks.
//
// A task line starts with an identifier token (T followed by three digits),
// optionally preceded by a list bullet and checkbox, then zero or more
// bracketed markers and a free-text description:
//
//	T001 [RED] Write failing test for Message.validate_content
//	T002 [GREEN→T001] Implement Message.validate_content
//	- [ ] T003 [P1][US1] Create upload endpoint in backend/api/upload.py
//
// Indented "REUSE:" and "Pattern:" lines under a task attach to that task.
package tasklist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/ShayCichocki/shipline/pkg/models"
)

var (
	// ErrDanglingGreen indicates a GREEN marker that references an unknown task.
	ErrDanglingGreen = errors.New("GREEN references unknown task")
	// ErrMalformedMarker indicates a bracketed marker that is not part of the grammar.
	ErrMalformedMarker = errors.New("malformed task marker")
	// ErrDuplicateID indicates the same identifier on two task lines.
	ErrDuplicateID = errors.New("duplicate task id")
	// ErrChainOrder indicates a TDD chain whose members are out of order.
	ErrChainOrder = errors.New("TDD chain out of order")
)

// ParseError reports a problem on a specific document line.
type ParseError struct {
	Line int
	Err  error
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	// taskLineRe matches "[- ][[ ] ]T001 rest".
	taskLineRe = regexp.MustCompile(`^\s*(?:[-*]\s+)?(?:\[[ xX]\]\s+)?(T\d{3})\b(.*)$`)
	// looksLikeTaskRe matches checkbox bullets and T-prefixed numbers of the wrong width.
	looksLikeTaskRe = regexp.MustCompile(`^\s*(?:[-*]\s+\[[ xX]\]|(?:[-*]\s+)?T\d+\b)`)
	// markerRe matches one leading bracketed marker.
	markerRe = regexp.MustCompile(`^\s*\[([^\]]*)\]`)
	// refMarkerRe matches GREEN/REFACTOR markers with a back-reference.
	refMarkerRe = regexp.MustCompile(`^(GREEN|REFACTOR)\s*(?:→|->)\s*(T\d{3})$`)
	// priorityRe and storyRe match grouping markers.
	priorityRe = regexp.MustCompile(`^P(\d+)$`)
	storyRe    = regexp.MustCompile(`^US(\d+)$`)
	// hintRe matches an indented continuation hint line.
	hintRe = regexp.MustCompile(`^\s+(?:[-*]\s+)?(?i:(reuse|pattern)):\s*(.+)$`)
)

// Document is the result of parsing a task list.
type Document struct {
	// Tasks are the parsed tasks in document order.
	Tasks []models.Task
	// Format is the detected organization of the document.
	Format models.TaskFormat
	// Warnings lists skipped lines and other non-fatal findings.
	Warnings []string
}

// IDs returns the task identifiers in document order.
func (d *Document) IDs() []string {
	ids := make([]string, len(d.Tasks))
	for i, t := range d.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// Lookup returns the task with the given id.
func (d *Document) Lookup(id string) (models.Task, bool) {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

// ParseFile reads and parses the task list at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task list: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Parse reads a task-list document. Any GREEN or REFACTOR reference that
// cannot be satisfied is a fatal error; lines without a recognizable
// identifier are skipped and reported in Document.Warnings.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{Format: models.FormatTDDPhase}
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := hintRe.FindStringSubmatch(line); m != nil && len(doc.Tasks) > 0 {
			last := &doc.Tasks[len(doc.Tasks)-1]
			values := splitList(m[2])
			if strings.EqualFold(m[1], "reuse") {
				last.Reuse = append(last.Reuse, values...)
			} else {
				last.Patterns = append(last.Patterns, strings.TrimSpace(m[2]))
			}
			continue
		}

		m := taskLineRe.FindStringSubmatch(line)
		if m == nil {
			if looksLikeTaskRe.MatchString(line) {
				doc.Warnings = append(doc.Warnings, fmt.Sprintf("line %d: no task identifier, skipped: %q", lineNo, strings.TrimSpace(line)))
			}
			continue
		}

		task, err := parseTaskLine(m[1], m[2], lineNo)
		if err != nil {
			return nil, err
		}
		if _, dup := index[task.ID]; dup {
			return nil, &ParseError{Line: lineNo, Err: ErrDuplicateID, Msg: task.ID}
		}
		index[task.ID] = len(doc.Tasks)
		doc.Tasks = append(doc.Tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read task list: %w", err)
	}

	if err := linkChains(doc.Tasks, index); err != nil {
		return nil, err
	}

	for _, t := range doc.Tasks {
		if t.Priority > 0 || t.Story > 0 {
			doc.Format = models.FormatUserStory
			break
		}
	}
	return doc, nil
}

// parseTaskLine extracts markers and description from the text after the id.
func parseTaskLine(id, rest string, lineNo int) (models.Task, error) {
	task := models.Task{
		ID:             id,
		Status:         models.TaskStatusPending,
		Parallelizable: true,
		Line:           lineNo,
	}

	for {
		m := markerRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		marker := strings.TrimSpace(rest[m[2]:m[3]])
		rest = rest[m[1]:]
		if err := applyMarker(&task, marker); err != nil {
			return models.Task{}, &ParseError{Line: lineNo, Err: ErrMalformedMarker, Msg: fmt.Sprintf("%s [%s]: %v", id, marker, err)}
		}
	}

	desc := strings.TrimSpace(strings.TrimLeft(rest, " \t:-"))
	if i := strings.Index(desc, "REUSE:"); i >= 0 {
		task.Reuse = append(task.Reuse, splitList(desc[i+len("REUSE:"):])...)
		desc = strings.TrimSpace(strings.TrimRight(desc[:i], " \t-—(,;"))
	}
	task.Description = desc
	task.Scope = ExtractScope(desc)
	task.Domain = InferDomain(desc, task.Scope)
	return task, nil
}

// applyMarker records one bracketed marker on the task.
func applyMarker(task *models.Task, marker string) error {
	upper := strings.ToUpper(marker)
	switch {
	case upper == "RED":
		return setPhase(task, models.TDDRed, "")
	case upper == "REFACTOR":
		return setPhase(task, models.TDDRefactor, "")
	case upper == "P":
		task.ParallelMarked = true
		return nil
	}

	if m := refMarkerRe.FindStringSubmatch(upper); m != nil {
		return setPhase(task, models.TDDPhase(m[1]), m[2])
	}
	if m := priorityRe.FindStringSubmatch(upper); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return fmt.Errorf("priority must be at least 1")
		}
		task.Priority = n
		return nil
	}
	if m := storyRe.FindStringSubmatch(upper); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			return fmt.Errorf("story must be at least 1")
		}
		task.Story = n
		return nil
	}
	if upper == "GREEN" {
		return fmt.Errorf("GREEN needs a RED reference, e.g. [GREEN→T001]")
	}
	return fmt.Errorf("unknown marker")
}

func setPhase(task *models.Task, phase models.TDDPhase, ref string) error {
	if task.TDDPhase != models.TDDNone {
		return fmt.Errorf("task already tagged %s", task.TDDPhase)
	}
	task.TDDPhase = phase
	task.Ref = ref
	if phase == models.TDDGreen || phase == models.TDDRefactor {
		task.Parallelizable = false
	}
	return nil
}

// linkChains validates GREEN references and resolves REFACTOR back-references.
// A REFACTOR without an explicit reference follows the nearest preceding GREEN
// sharing its file scope, or the nearest preceding GREEN otherwise.
func linkChains(tasks []models.Task, index map[string]int) error {
	for i := range tasks {
		t := &tasks[i]
		switch t.TDDPhase {
		case models.TDDGreen:
			j, ok := index[t.Ref]
			if !ok {
				return &ParseError{Line: t.Line, Err: ErrDanglingGreen, Msg: fmt.Sprintf("%s references %s", t.ID, t.Ref)}
			}
			if tasks[j].TDDPhase != models.TDDRed {
				return &ParseError{Line: t.Line, Err: ErrChainOrder, Msg: fmt.Sprintf("%s references %s, which is not a RED task", t.ID, t.Ref)}
			}
			if j > i {
				return &ParseError{Line: t.Line, Err: ErrChainOrder, Msg: fmt.Sprintf("%s appears before its RED task %s", t.ID, t.Ref)}
			}
		case models.TDDRefactor:
			if t.Ref != "" {
				j, ok := index[t.Ref]
				if !ok || tasks[j].TDDPhase != models.TDDGreen || j > i {
					return &ParseError{Line: t.Line, Err: ErrChainOrder, Msg: fmt.Sprintf("%s must follow a GREEN task, got %s", t.ID, t.Ref)}
				}
				continue
			}
			ref := precedingGreen(tasks[:i], t.Scope)
			if ref == "" {
				return &ParseError{Line: t.Line, Err: ErrChainOrder, Msg: fmt.Sprintf("%s has no preceding GREEN task", t.ID)}
			}
			t.Ref = ref
		}
	}
	return nil
}

func precedingGreen(before []models.Task, scope []string) string {
	nearest := ""
	for i := len(before) - 1; i >= 0; i-- {
		t := before[i]
		if t.TDDPhase != models.TDDGreen {
			continue
		}
		if len(scope) > 0 && scopesOverlap(scope, t.Scope) {
			return t.ID
		}
		if nearest == "" {
			nearest = t.ID
		}
	}
	return nearest
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.Trim(strings.TrimSpace(part), "`'\"")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
