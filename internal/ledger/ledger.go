// Package ledger reads and appends the completion ledger, the append-only
// record of finished tasks that makes resume idempotent.
//
// Each line is "<taskId> completed|failed [key=value ...]". Values that contain
// whitespace or quotes are written Go-quoted:
//
//	T001 completed evidence="3 passed" coverage=+2.1% commit=4f2a9c1
//	T002 failed reason="exit status 1" rollback=skipped
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// Well-known metadata keys.
const (
	KeyEvidence = "evidence"
	KeyCoverage = "coverage"
	KeyCommit   = "commit"
	KeyReason   = "reason"
	KeyRollback = "rollback"
	KeyAt       = "at"
)

// ErrMalformedRecord indicates a ledger line that cannot be parsed.
var ErrMalformedRecord = errors.New("malformed ledger record")

// Record is one ledger line.
type Record struct {
	TaskID string
	Status models.TaskStatus
	Meta   map[string]string
}

// Get returns a metadata value or the empty string.
func (r Record) Get(key string) string {
	return r.Meta[key]
}

// String renders the record as a ledger line without the trailing newline.
// Metadata keys are written in sorted order.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString(r.TaskID)
	b.WriteByte(' ')
	b.WriteString(string(r.Status))

	keys := make([]string, 0, len(r.Meta))
	for k := range r.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := r.Meta[k]
		if v == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		if strings.ContainsAny(v, " \t\r\n\"=") {
			v = strconv.Quote(v)
		}
		b.WriteString(v)
	}
	return b.String()
}

// ParseRecord parses one ledger line.
func ParseRecord(line string) (Record, error) {
	fields, err := splitFields(strings.TrimSpace(line))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if len(fields) < 2 {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformedRecord, line)
	}
	rec := Record{TaskID: fields[0], Status: models.TaskStatus(fields[1])}
	if rec.Status != models.TaskStatusCompleted && rec.Status != models.TaskStatusFailed {
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrMalformedRecord, fields[1])
	}
	for _, f := range fields[2:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok || k == "" {
			return Record{}, fmt.Errorf("%w: bad metadata %q", ErrMalformedRecord, f)
		}
		if strings.HasPrefix(v, `"`) {
			uq, err := strconv.Unquote(v)
			if err != nil {
				return Record{}, fmt.Errorf("%w: bad quoted value %q", ErrMalformedRecord, v)
			}
			v = uq
		}
		if rec.Meta == nil {
			rec.Meta = make(map[string]string)
		}
		rec.Meta[k] = v
	}
	return rec, nil
}

// splitFields splits on whitespace, keeping quoted values (with escapes) intact.
func splitFields(s string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case !inQuote && (r == ' ' || r == '\t'):
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields, nil
}

// Ledger is a completion ledger file. Appends are safe for concurrent use by
// workers of the same batch.
type Ledger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open returns the ledger at path. The file is created on first append.
func Open(path string) *Ledger {
	return &Ledger{path: path, now: time.Now}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Append writes one record. An "at" timestamp is added when absent.
func (l *Ledger) Append(rec Record) error {
	if rec.TaskID == "" {
		return fmt.Errorf("append ledger record: empty task id")
	}
	meta := make(map[string]string, len(rec.Meta)+1)
	for k, v := range rec.Meta {
		meta[k] = v
	}
	if meta[KeyAt] == "" {
		meta[KeyAt] = l.now().UTC().Format(time.RFC3339)
	}
	rec.Meta = meta

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(rec.String() + "\n"); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return f.Sync()
}

// Read returns every well-formed record in file order. Blank lines and
// "#" comments are ignored; malformed lines (such as a line torn by a crash)
// are skipped with a warning. A missing file is an empty ledger.
func (l *Ledger) Read() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			log.Printf("[ledger] warning: %s:%d: %v", l.path, lineNo, err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return records, nil
}

// Latest returns the most recent record per task.
func (l *Ledger) Latest() (map[string]Record, error) {
	records, err := l.Read()
	if err != nil {
		return nil, err
	}
	latest := make(map[string]Record, len(records))
	for _, rec := range records {
		latest[rec.TaskID] = rec
	}
	return latest, nil
}

// Completed returns the set of tasks whose latest record is "completed".
// A later "failed" record for a retried task overrides an earlier completion.
func (l *Ledger) Completed() (map[string]bool, error) {
	latest, err := l.Latest()
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for id, rec := range latest {
		if rec.Status == models.TaskStatusCompleted {
			done[id] = true
		}
	}
	return done, nil
}
