package exec

import (
	"context"
	"strings"
	"testing"
)

func TestRunShell_Env(t *testing.T) {
	out, err := NewRunner().RunShell(context.Background(), t.TempDir(), `echo "$SHIPLINE_TASK"`, "SHIPLINE_TASK=T001")
	if err != nil {
		t.Fatalf("RunShell failed: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "T001" {
		t.Errorf("output = %q, want T001", got)
	}
}

func TestExitCode(t *testing.T) {
	_, err := NewRunner().RunShell(context.Background(), "", "exit 3")
	if got := ExitCode(err); got != 3 {
		t.Errorf("ExitCode = %d, want 3", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	_, err = NewRunner().Run(context.Background(), "", "/nonexistent/binary")
	if got := ExitCode(err); got != -1 {
		t.Errorf("ExitCode(not started) = %d, want -1", got)
	}
}
