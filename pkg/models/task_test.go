package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"failed is valid", TaskStatusFailed, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"done is not part of the vocabulary", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestDomain_Valid(t *testing.T) {
	for _, d := range Domains {
		if !d.Valid() {
			t.Errorf("Domain(%q).Valid() = false, want true", d)
		}
	}
	if Domain("mobile").Valid() {
		t.Error("Domain(\"mobile\").Valid() = true, want false")
	}
}

func TestTask_String(t *testing.T) {
	tests := []struct {
		task Task
		want string
	}{
		{Task{ID: "T003", Domain: DomainBackend}, "T003 (backend)"},
		{Task{ID: "T001", Domain: DomainTests, TDDPhase: TDDRed}, "T001 [RED] (tests)"},
		{Task{ID: "T002", Domain: DomainGeneral, TDDPhase: TDDGreen, Ref: "T001"}, "T002 [GREEN→T001] (general)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.task.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTask_InChain(t *testing.T) {
	if (Task{ID: "T001"}).InChain() {
		t.Error("plain task should not be in a chain")
	}
	if !(Task{ID: "T001", TDDPhase: TDDRefactor}).InChain() {
		t.Error("REFACTOR task should be in a chain")
	}
}
