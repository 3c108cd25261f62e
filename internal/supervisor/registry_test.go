package supervisor

import (
	"testing"
	"time"
)

func TestNewStreamKey(t *testing.T) {
	if got := NewStreamKey("p", "7"); got != "p-7" {
		t.Errorf("got %q", got)
	}
	if NewStreamKey("p", "7") == NewStreamKey("q", "7") {
		t.Error("keys of different projects must differ")
	}
}

func TestRegistry_NextRetryDelay(t *testing.T) {
	r := NewRegistry(0, 0)

	want := []time.Duration{1000, 2000, 4000, 8000, 10000, 10000}
	for i, ms := range want {
		if got := r.NextRetryDelay("p-7"); got != ms*time.Millisecond {
			t.Errorf("attempt %d: got %v want %v", i+1, got, ms*time.Millisecond)
		}
	}

	if got := r.NextRetryDelay("q-7"); got != time.Second {
		t.Errorf("keys must not share delays, got %v", got)
	}

	r.ResetRetryDelay("p-7")
	if got := r.NextRetryDelay("p-7"); got != time.Second {
		t.Errorf("after reset: got %v want 1s", got)
	}
}

func TestRegistry_NextRetryDelay_custom(t *testing.T) {
	r := NewRegistry(250*time.Millisecond, time.Second)

	want := []time.Duration{250, 500, 1000, 1000}
	for i, ms := range want {
		if got := r.NextRetryDelay("p-7"); got != ms*time.Millisecond {
			t.Errorf("attempt %d: got %v want %v", i+1, got, ms*time.Millisecond)
		}
	}
}

func TestRegistry_ResetRetryDelay_unknown(t *testing.T) {
	r := NewRegistry(0, 0)
	r.ResetRetryDelay("missing")
	if got := r.NextRetryDelay("missing"); got != time.Second {
		t.Errorf("got %v want 1s", got)
	}
}

func TestRegistry_stopped(t *testing.T) {
	r := NewRegistry(0, 0)

	if r.IsStopped("p-7") {
		t.Fatal("new key should not be stopped")
	}
	r.MarkStopped("p-7")
	if !r.IsStopped("p-7") {
		t.Error("expected stopped")
	}
	r.ClearStopped("p-7")
	if r.IsStopped("p-7") {
		t.Error("expected cleared")
	}
}

func TestRegistry_workers(t *testing.T) {
	r := NewRegistry(0, 0)

	r.Put(&WorkerState{Key: "b-1", Kind: KindSingle, Handle: newFakeHandle("w2")})
	r.Put(&WorkerState{Key: "a-1", Kind: KindComposite, Handle: newFakeHandle("w1"),
		Composite: CompositeSpec{URLs: []Source{{URL: "x"}, {URL: "y"}}}})

	if !r.Has("a-1") || r.Len() != 2 {
		t.Fatalf("expected two entries, got %d", r.Len())
	}

	snap := r.Snapshot()
	if snap[0].Key != "a-1" || snap[1].Key != "b-1" {
		t.Errorf("snapshot should be ordered by key, got %+v", snap)
	}
	if snap[0].Inputs != 2 || snap[1].Inputs != 1 {
		t.Errorf("unexpected input counts %d %d", snap[0].Inputs, snap[1].Inputs)
	}

	if w, ok := r.Remove("a-1"); !ok || w.Handle.ID() != "w1" {
		t.Errorf("Remove: %v %v", w, ok)
	}
	if _, ok := r.Remove("a-1"); ok {
		t.Error("second Remove should miss")
	}

	if drained := r.DrainAll(); len(drained) != 1 || r.Len() != 0 {
		t.Errorf("DrainAll: got %d, %d left", len(drained), r.Len())
	}
}

func TestRegistry_pending(t *testing.T) {
	r := NewRegistry(0, 0)

	p := &pendingReconnect{timer: &fakeTimer{}}
	r.SetPending("p-7", p)
	if !r.HasPending("p-7") {
		t.Fatal("expected pending")
	}
	if keys := r.PendingKeys(); len(keys) != 1 || keys[0] != "p-7" {
		t.Errorf("PendingKeys: %v", keys)
	}

	if r.TakePending("p-7", &pendingReconnect{}) {
		t.Error("a different token must not take the pending reconnect")
	}
	if !r.TakePending("p-7", p) {
		t.Error("matching token should take the pending reconnect")
	}
	if r.HasPending("p-7") {
		t.Error("pending should be cleared")
	}

	q := &pendingReconnect{timer: &fakeTimer{}}
	r.SetPending("p-7", q)
	r.CancelPending("p-7")
	if !q.timer.(*fakeTimer).stopped {
		t.Error("CancelPending should stop the timer")
	}
	if r.TakePending("p-7", q) {
		t.Error("cancelled reconnect must not be taken")
	}
}
