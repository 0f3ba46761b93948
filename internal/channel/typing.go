package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// typingInterval is how often a live loop re-emits the typing signal.
// Variable so tests can shorten it.
var typingInterval = 4 * time.Second

// typingTask is one cancellable typing loop. done is closed when the loop
// goroutine has fully exited, so a restart can await its predecessor.
type typingTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// typingManager owns the per-conversation typing loops. At most one live
// loop exists per chat ID; Start replaces, Stop is idempotent.
type typingManager struct {
	mu    sync.Mutex
	tasks map[string]*typingTask

	send      func(chatID string) error // emits one typing frame
	connected func() bool
	logger    *slog.Logger
}

func newTypingManager(send func(chatID string) error, connected func() bool, logger *slog.Logger) *typingManager {
	return &typingManager{
		tasks:     make(map[string]*typingTask),
		send:      send,
		connected: connected,
		logger:    logger,
	}
}

// Start begins a typing loop for the chat, first cancelling and awaiting
// any existing loop for the same ID.
func (m *typingManager) Start(ctx context.Context, chatID string) {
	m.Stop(chatID)

	loopCtx, cancel := context.WithCancel(ctx)
	task := &typingTask{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.tasks[chatID] = task
	m.mu.Unlock()

	go m.loop(loopCtx, chatID, task.done)
}

// Stop cancels the typing loop for the chat and waits for it to exit.
// Calling Stop for an absent or finished chat is a no-op. After Stop
// returns, no further typing frame for this chat will be emitted until
// Start is called again.
func (m *typingManager) Stop(chatID string) {
	m.mu.Lock()
	task, ok := m.tasks[chatID]
	if ok {
		delete(m.tasks, chatID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	task.cancel()
	<-task.done
}

// StopAll cancels every live typing loop. Used on disconnect and shutdown.
func (m *typingManager) StopAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[string]*typingTask)
	m.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

// Active reports whether a typing loop is registered for the chat.
func (m *typingManager) Active(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[chatID]
	return ok
}

// loop emits a typing frame every typingInterval while the session is
// connected. A transport error ends the loop silently; the next message
// for the chat starts a fresh one.
//
// The loop never touches m.tasks; entries are removed only by Start, Stop
// and StopAll, so a finished loop may leave a stale entry until the next
// Stop or Start for the chat clears it.
func (m *typingManager) loop(ctx context.Context, chatID string, done chan struct{}) {
	defer close(done)

	for m.connected() {
		if err := m.send(chatID); err != nil {
			m.logger.Debug("typing indicator stopped", "chat_id", chatID, "err", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(typingInterval):
		}
	}
}
