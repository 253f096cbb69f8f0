package service

import (
	"context"
	"testing"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

func publishN(h *ProgressHub, jobID string, n int) {
	for i := 0; i < n; i++ {
		h.Publish(context.Background(), jobID, domain.ProgressEvent{Type: domain.EventProgress})
	}
}

func TestHub_SequenceStrictlyIncreasing(t *testing.T) {
	hub := NewProgressHub(nil)
	sub := hub.Subscribe("job-1")
	defer sub.Close()

	publishN(hub, "job-1", 5)

	var last uint64
	for i := 0; i < 5; i++ {
		select {
		case ev := <-sub.Events():
			if ev.Sequence <= last {
				t.Fatalf("sequence not strictly increasing: %d after %d", ev.Sequence, last)
			}
			if ev.JobID != "job-1" {
				t.Errorf("wrong job id: %s", ev.JobID)
			}
			last = ev.Sequence
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestHub_SequenceIndependentPerJob(t *testing.T) {
	hub := NewProgressHub(nil)
	subA := hub.Subscribe("job-a")
	defer subA.Close()
	subB := hub.Subscribe("job-b")
	defer subB.Close()

	publishN(hub, "job-a", 3)
	publishN(hub, "job-b", 1)

	evB := <-subB.Events()
	if evB.Sequence != 1 {
		t.Errorf("expected job-b to start at sequence 1, got %d", evB.Sequence)
	}
}

func TestHub_TerminalEventClosesStream(t *testing.T) {
	hub := NewProgressHub(nil)
	sub := hub.Subscribe("job-1")

	hub.Publish(context.Background(), "job-1", domain.ProgressEvent{Type: domain.EventProgress})
	hub.Publish(context.Background(), "job-1", domain.ProgressEvent{Type: domain.EventCompleted})

	var got []domain.ProgressEvent
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events before close, got %d", len(got))
	}
	if got[1].Type != domain.EventCompleted {
		t.Errorf("expected final event to be completed, got %s", got[1].Type)
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewProgressHub(nil)
	sub := hub.Subscribe("job-1")

	publishN(hub, "job-1", 1)
	sub.Close()
	// Publishing after Close must not panic or deliver.
	publishN(hub, "job-1", 1)

	var count int
	for range sub.Events() {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly 1 delivered event, got %d", count)
	}
}

func TestHub_CloseTwiceIsNoOp(t *testing.T) {
	hub := NewProgressHub(nil)
	sub := hub.Subscribe("job-1")
	sub.Close()
	sub.Close()
}

func TestHub_SlowSubscriberSlidesOldestFirst(t *testing.T) {
	hub := NewProgressHub(nil)
	hub.buffer = 2
	sub := hub.Subscribe("job-1")
	defer sub.Close()

	publishN(hub, "job-1", 5)

	// Buffer holds two; the oldest three were dropped. The newest event
	// must be present.
	first := <-sub.Events()
	second := <-sub.Events()
	if first.Sequence != 4 || second.Sequence != 5 {
		t.Errorf("expected sequences 4 and 5 after sliding, got %d and %d", first.Sequence, second.Sequence)
	}
}

func TestHub_MultipleSubscribersEachGetEvents(t *testing.T) {
	hub := NewProgressHub(nil)
	a := hub.Subscribe("job-1")
	b := hub.Subscribe("job-1")
	defer a.Close()
	defer b.Close()

	publishN(hub, "job-1", 2)

	for _, sub := range []*Subscription{a, b} {
		ev := <-sub.Events()
		if ev.Sequence != 1 {
			t.Errorf("expected first sequence 1, got %d", ev.Sequence)
		}
	}
}

func TestHub_MidRunSubscriberSeesIncreasingSequence(t *testing.T) {
	hub := NewProgressHub(nil)

	// Events before any subscriber still advance the sequence.
	publishN(hub, "job-1", 3)

	sub := hub.Subscribe("job-1")
	defer sub.Close()
	publishN(hub, "job-1", 1)

	ev := <-sub.Events()
	if ev.Sequence != 4 {
		t.Errorf("expected sequence 4 for late subscriber, got %d", ev.Sequence)
	}
}

func TestHub_SequenceSurvivesResubscribe(t *testing.T) {
	hub := NewProgressHub(nil)

	first := hub.Subscribe("job-1")
	publishN(hub, "job-1", 2)
	for i := 0; i < 2; i++ {
		<-first.Events()
	}
	first.Close()

	publishN(hub, "job-1", 1)

	second := hub.Subscribe("job-1")
	defer second.Close()
	publishN(hub, "job-1", 1)

	select {
	case ev := <-second.Events():
		if ev.Sequence != 4 {
			t.Errorf("expected sequence to continue at 4 after resubscribe, got %d", ev.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_IdleStreamDiscardedOnUnsubscribe(t *testing.T) {
	hub := NewProgressHub(nil)

	// Subscribing to a job that never produces must not leak a stream.
	sub := hub.Subscribe("finished-job")
	sub.Close()

	hub.mu.Lock()
	_, ok := hub.streams["finished-job"]
	hub.mu.Unlock()
	if ok {
		t.Error("expected idle stream removed after last unsubscribe")
	}
}
