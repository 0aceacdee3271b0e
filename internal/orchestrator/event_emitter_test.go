package orchestrator

import "testing"

func TestEventEmitter_DropsProgressWhenFull(t *testing.T) {
	e := NewEventEmitter(1, NopLogger())
	e.Emit(OrchestratorEvent{Type: EventTaskStarted, TaskID: "T001"})
	e.Emit(OrchestratorEvent{Type: EventTaskStarted, TaskID: "T002"})

	if got := e.DroppedCount(); got != 1 {
		t.Fatalf("DroppedCount() = %d, want 1", got)
	}
	ev := <-e.Events()
	if ev.TaskID != "T001" || ev.Timestamp.IsZero() {
		t.Errorf("first event = %+v, want stamped T001", ev)
	}
}

func TestEventEmitter_CloseIsIdempotent(t *testing.T) {
	e := NewEventEmitter(4, nil)
	e.Close()
	e.Close()
	e.Emit(OrchestratorEvent{Type: EventRunDone})

	if _, ok := <-e.Events(); ok {
		t.Error("expected closed channel")
	}
}

func TestEventType_Terminal(t *testing.T) {
	for _, tt := range []struct {
		typ  EventType
		want bool
	}{
		{EventRunDone, true},
		{EventGateAwaiting, true},
		{EventPhaseFailed, true},
		{EventTaskCompleted, false},
		{EventBatchStarted, false},
	} {
		if got := tt.typ.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
