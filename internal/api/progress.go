package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/ideaforge/ideaforge/internal/app/progress"
	"github.com/ideaforge/ideaforge/internal/domain"
)

// ─── Live Progress Feed ─────────────────────────────────────────────────────
// The generation dialog shows a synthetic progress bar while the remote call
// runs. Samples are broadcast per topic (userID/feature) over SSE so the UI
// can subscribe before firing the generate request. Closing the stream
// detaches the viewer; the run itself keeps going.

// ProgressHub fans progress samples out to SSE subscribers.
type ProgressHub struct {
	mu     sync.Mutex
	topics map[string]map[chan []byte]struct{}
}

// NewProgressHub creates a new progress broadcast hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		topics: make(map[string]map[chan []byte]struct{}),
	}
}

// Broadcast sends a sample to every subscriber of the topic.
func (h *ProgressHub) Broadcast(topic string, sample domain.ProgressSample) {
	data, err := json.Marshal(sample)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- data:
		default:
			// Client too slow — drop sample; the next one supersedes it anyway
		}
	}
}

// Sink returns a progress sink that broadcasts to the topic. Handed to the
// orchestrator when a run starts.
func (h *ProgressHub) Sink(topic string) progress.Sink {
	return func(sample domain.ProgressSample) {
		h.Broadcast(topic, sample)
	}
}

// Subscribe registers a new client on a topic. Returns the channel and an
// unsubscribe func.
func (h *ProgressHub) Subscribe(topic string) (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[chan []byte]struct{})
	}
	h.topics[topic][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.topics[topic], ch)
		if len(h.topics[topic]) == 0 {
			delete(h.topics, topic)
		}
		h.mu.Unlock()
		close(ch)
	}
}

// SubscriberCount returns the number of clients on a topic.
func (h *ProgressHub) SubscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// handleProgressSSE streams progress samples for one feature via Server-Sent
// Events. GET /api/progress/{feature}
func (s *Server) handleProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	feature := chi.URLParam(r, "feature")
	p := principal(r)
	topic := p.UserID + "/" + feature

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch, unsub := s.progressHub.Subscribe(topic)
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
