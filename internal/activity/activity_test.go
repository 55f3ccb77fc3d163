package activity

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func find(l *Log, id string) (Entry, bool) {
	for _, e := range l.Recent(0) {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

func TestLog_StartFinish(t *testing.T) {
	l := NewLog(10, nil)
	id := l.Start("pull", "llama3.2")

	e, ok := find(l, id)
	if !ok {
		t.Fatal("entry not found")
	}
	if e.Status != StatusInFlight || e.Finished != nil {
		t.Errorf("entry = %+v", e)
	}

	l.Finish(id, StatusSuccess, "success", 2048)
	e, _ = find(l, id)
	if e.Status != StatusSuccess || e.Bytes != 2048 || e.Finished == nil {
		t.Errorf("entry = %+v", e)
	}
	if e.Duration(time.Now()) < 0 {
		t.Error("negative duration")
	}
}

func TestLog_FinishUnknownID(t *testing.T) {
	l := NewLog(2, nil)
	l.Finish("nope", StatusError, "x", 0)
	if len(l.Recent(0)) != 0 {
		t.Errorf("Len = %d", len(l.Recent(0)))
	}
}

func TestLog_RingBufferEvicts(t *testing.T) {
	l := NewLog(3, nil)
	var ids []string
	for _, op := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, l.Start(op, ""))
	}

	if len(l.Recent(0)) != 3 {
		t.Fatalf("Len = %d, want 3", len(l.Recent(0)))
	}
	if _, ok := find(l, ids[0]); ok {
		t.Error("oldest entry should be evicted")
	}

	recent := l.Recent(0)
	got := make([]string, 0, len(recent))
	for _, e := range recent {
		got = append(got, e.Op)
	}
	if strings.Join(got, ",") != "e,d,c" {
		t.Errorf("Recent = %v, want newest first e,d,c", got)
	}

	if r := l.Recent(2); len(r) != 2 || r[0].Op != "e" {
		t.Errorf("Recent(2) = %+v", r)
	}

	// Finishing an evicted entry must not touch the slot that replaced it.
	l.Finish(ids[1], StatusError, "late", 0)
	for _, e := range l.Recent(0) {
		if e.Message == "late" {
			t.Errorf("evicted entry finish leaked into %+v", e)
		}
	}
}

func TestLog_Record(t *testing.T) {
	l := NewLog(5, nil)
	l.Record("unload", "m", nil)
	l.Record("delete", "m", errors.New("model 'm' not found"))

	r := l.Recent(0)
	if r[0].Status != StatusError || r[0].Message != "model 'm' not found" {
		t.Errorf("newest = %+v", r[0])
	}
	if r[1].Status != StatusSuccess {
		t.Errorf("older = %+v", r[1])
	}
}

func TestLog_PublishesToBus(t *testing.T) {
	bus := NewBus(10)
	defer bus.Shutdown()
	sub := bus.Subscribe()

	l := NewLog(5, bus)
	id := l.Start("load", "llama3.2")
	l.Finish(id, StatusSuccess, "", 0)

	want := []Status{StatusInFlight, StatusSuccess}
	for _, st := range want {
		select {
		case e := <-sub:
			if e.ID != id || e.Status != st {
				t.Errorf("event = %+v, want status %s", e, st)
			}
		case <-time.After(time.Second):
			t.Fatalf("did not receive %s event", st)
		}
	}
}

func TestBus_NonBlockingPublish(t *testing.T) {
	bus := NewBus(1)
	defer bus.Shutdown()
	_ = bus.Subscribe() // never drained

	start := time.Now()
	for i := 0; i < 1000; i++ {
		bus.Publish(Entry{Op: "x"})
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Publish blocked on a slow subscriber")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(4)
	defer bus.Shutdown()

	sub := bus.Subscribe()
	if bus.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", bus.Subscribers())
	}
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Error("channel should be closed")
	}
	if bus.Subscribers() != 0 {
		t.Errorf("Subscribers = %d", bus.Subscribers())
	}
}

func TestBus_Shutdown(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	bus.Shutdown()
	bus.Shutdown()

	if _, ok := <-sub; ok {
		t.Error("subscriber channel should be closed")
	}
	bus.Publish(Entry{Op: "after"})

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after shutdown should be closed")
	}
}

func TestFormatSSE(t *testing.T) {
	got, err := FormatSSE("", map[string]string{"op": "pull"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "data: {\"op\":\"pull\"}\n\n" {
		t.Errorf("FormatSSE = %q", got)
	}

	got, _ = FormatSSE("snapshot", map[string]int{"n": 1})
	if got != "event: snapshot\ndata: {\"n\":1}\n\n" {
		t.Errorf("FormatSSE = %q", got)
	}

	if _, err := FormatSSE("x", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}
