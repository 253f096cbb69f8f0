package service

import (
	"context"
	"sync"
	"time"

	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
)

// defaultEventBuffer is the per-subscriber channel capacity. A consumer
// that falls further behind loses its oldest events first.
const defaultEventBuffer = 64

// Subscription is one consumer's view of a job's event stream. The
// channel is closed when the job reaches a terminal state or when the
// subscriber calls Close.
type Subscription struct {
	jobID string
	ch    chan domain.ProgressEvent
	hub   *ProgressHub

	// closed is guarded by the hub mutex.
	closed bool
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.ch
}

// Close detaches the subscription. No events are delivered after Close
// returns; closing twice is a no-op.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// jobStream is the hub's per-job fan-out state.
type jobStream struct {
	seq  uint64
	subs map[*Subscription]struct{}
}

// ProgressHub fans job progress events out to subscribers. The
// orchestrator is the single producer per job; sequence numbers are
// assigned under the hub lock so they are strictly increasing and
// gap-free as emitted. The hub keeps no history: a subscriber that
// arrives late or falls behind reconciles against the job snapshot.
type ProgressHub struct {
	mu      sync.Mutex
	streams map[string]*jobStream
	buffer  int
	logger  *logger.Logger
}

// NewProgressHub creates a ProgressHub.
func NewProgressHub(log *logger.Logger) *ProgressHub {
	return &ProgressHub{
		streams: make(map[string]*jobStream),
		buffer:  defaultEventBuffer,
		logger:  log,
	}
}

// Subscribe registers a consumer for a job's events. Subscribing to a
// job that already finished yields a stream that never produces; callers
// check the job snapshot first and treat terminal states directly.
func (h *ProgressHub) Subscribe(jobID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, ok := h.streams[jobID]
	if !ok {
		stream = &jobStream{subs: make(map[*Subscription]struct{})}
		h.streams[jobID] = stream
	}
	sub := &Subscription{
		jobID: jobID,
		ch:    make(chan domain.ProgressEvent, h.buffer),
		hub:   h,
	}
	stream.subs[sub] = struct{}{}
	return sub
}

func (h *ProgressHub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	if stream, ok := h.streams[sub.jobID]; ok {
		delete(stream.subs, sub)
		// A stream that has produced events keeps its sequence counter
		// until the terminal publish, so a subscriber that detaches and
		// comes back never sees the numbering restart. Streams that
		// never produced were created by a subscription to an unknown
		// or finished job and can go immediately.
		if len(stream.subs) == 0 && stream.seq == 0 {
			delete(h.streams, sub.jobID)
		}
	}
	close(sub.ch)
}

// Publish stamps the event with the job's next sequence number and
// delivers it to every subscriber. A terminal event closes the stream.
// Publish never blocks on a slow consumer; a full buffer slides
// oldest-first so the consumer always sees the newest state.
func (h *ProgressHub) Publish(ctx context.Context, jobID string, event domain.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, ok := h.streams[jobID]
	if !ok {
		if !event.Type.Terminal() {
			// Track sequence even with no listeners so a subscriber
			// joining mid-run still sees increasing numbers.
			stream = &jobStream{subs: make(map[*Subscription]struct{})}
			h.streams[jobID] = stream
		} else {
			return
		}
	}

	stream.seq++
	event.JobID = jobID
	event.Sequence = stream.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for sub := range stream.subs {
		select {
		case sub.ch <- event:
		default:
			// Buffer full. Drop the oldest event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- event:
			default:
			}
			logger.CtxDebug(ctx, "progress subscriber lagging, dropped oldest event: job=%s seq=%d", jobID, event.Sequence)
		}
	}

	if event.Type.Terminal() {
		for sub := range stream.subs {
			sub.closed = true
			close(sub.ch)
		}
		delete(h.streams, jobID)
	}
}
