package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	subscriberBuffer = 16
	keepAlive        = 30 * time.Second
)

// ProgressEvent is one SSE message about a job.
type ProgressEvent struct {
	JobID       string    `json:"jobId"`
	State       JobState  `json:"state"`
	Generation  int       `json:"generation"`
	Evaluations int       `json:"evaluations"`
	BestFitness jsonFloat `json:"bestFitness"`
	EPS         float64   `json:"eps"` // evaluations per second
	Timestamp   time.Time `json:"timestamp"`
}

// topic holds the subscribers of one job and its latest event.
type topic struct {
	subs   map[chan ProgressEvent]struct{}
	last   ProgressEvent
	primed bool
}

// EventBroadcaster fans progress events out to stream subscribers. Sends
// never block: a subscriber whose buffer is full misses the event.
type EventBroadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
	drops  int
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{topics: make(map[string]*topic)}
}

func (eb *EventBroadcaster) topic(jobID string) *topic {
	t, ok := eb.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[chan ProgressEvent]struct{})}
		eb.topics[jobID] = t
	}
	return t
}

// Subscribe registers a subscriber for jobID. The job's latest event, if
// any, is queued immediately.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	t := eb.topic(jobID)
	t.subs[ch] = struct{}{}
	if t.primed {
		ch <- t.last
	}
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok {
		return
	}
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
}

// Broadcast records event as the job's latest and offers it to every
// subscriber.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t := eb.topic(event.JobID)
	t.last = event
	t.primed = true
	for ch := range t.subs {
		select {
		case ch <- event:
		default:
			eb.drops++
		}
	}
}

// Subscribers reports how many streams follow jobID.
func (eb *EventBroadcaster) Subscribers(jobID string) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if t, ok := eb.topics[jobID]; ok {
		return len(t.subs)
	}
	return 0
}

// Dropped reports how many events were skipped for slow subscribers.
func (eb *EventBroadcaster) Dropped() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return eb.drops
}

// handleJobStream serves GET /api/v1/jobs/:id/stream as server-sent events.
// The stream ends after the job reaches a terminal state.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	send := func(ev ProgressEvent) bool {
		if err := writeSSE(w, ev); err != nil {
			s.logger.Debug("SSE write failed", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(ProgressEvent{
		JobID:       job.ID,
		State:       job.State,
		Generation:  job.Generations,
		Evaluations: job.Evaluations,
		BestFitness: job.BestFitness,
		EPS:         perSecond(job.Evaluations, job.Elapsed()),
		Timestamp:   time.Now(),
	}) || job.State.Terminal() {
		return
	}

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok || !send(ev) || ev.State.Terminal() {
				return
			}
		case <-ping.C:
			io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSE writes one "data: <json>" frame.
func writeSSE(w io.Writer, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
