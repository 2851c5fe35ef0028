package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/inplace/internal/logging"
	"github.com/aretw0/inplace/pkg/domain"
)

// AllJobs is the topic receiving every job status.
const AllJobs = "*"

// StreamManager fans job statuses out to SSE subscribers. It implements
// ports.StatusHandler so it can be registered on the runner directly.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // topic -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a channel for topic, a project key or AllJobs.
// The returned function unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[topic]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, topic)
			}
		}
	}
}

// Handle publishes the status to AllJobs and to every project it mentions.
func (sm *StreamManager) Handle(ctx context.Context, status *domain.Status) {
	payload, err := json.Marshal(status)
	if err != nil {
		sm.logger.Error("StreamManager: status encode failed", "err", err)
		return
	}
	msg := string(payload)

	topics := map[string]bool{AllJobs: true}
	status.Walk(func(_ int, st *domain.Status) {
		if st.Project != "" {
			topics[string(st.Project)] = true
		}
	})
	for topic := range topics {
		sm.Broadcast(topic, msg)
	}
}

func (sm *StreamManager) Broadcast(topic string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// Slow clients lose messages rather than block the job.
			sm.logger.Warn("SSE: Client buffer full, dropping message", "topic", topic)
		}
	}
}
