package chatapp

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"marketchat/internal/domain/catalog"
	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirectory knows every actor except the ones listed as missing.
type fakeDirectory struct {
	missing map[string]bool
}

func (f fakeDirectory) Exists(_ context.Context, actor chat.Actor) (bool, error) {
	return !f.missing[actor.ChannelKey()], nil
}

type fakeCatalog struct {
	listings map[string]catalog.Summary
}

func (f fakeCatalog) Summary(_ context.Context, listingID string) (*catalog.Summary, error) {
	s, ok := f.listings[listingID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type fakePresence struct {
	mu      sync.Mutex
	present map[string]bool
	err     error
}

func (f *fakePresence) IsPresent(_ context.Context, actor chat.Actor) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.present[actor.ChannelKey()], nil
}

type published struct {
	channel string
	event   Event
}

type fakePublisher struct {
	mu      sync.Mutex
	events  []published
	failFor map[string]error
}

func (f *fakePublisher) Publish(_ context.Context, channelKey string, event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[channelKey]; ok {
		return err
	}
	f.events = append(f.events, published{channel: channelKey, event: event})
	return nil
}

func (f *fakePublisher) byType(eventType string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.events {
		if p.event.Type == eventType {
			out = append(out, p)
		}
	}
	return out
}

type queuedTask struct {
	task queue.Task
	opt  queue.EnqueueOption
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queuedTask
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, task queue.Task, opts ...queue.EnqueueOption) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	var opt queue.EnqueueOption
	if len(opts) > 0 {
		opt = opts[0]
	}
	f.tasks = append(f.tasks, queuedTask{task: task, opt: opt})
	return "task-id", nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) ofType(taskType string) []queuedTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queuedTask
	for _, qt := range f.tasks {
		if qt.task.Type == taskType {
			out = append(out, qt)
		}
	}
	return out
}

type fakeContacts struct {
	contacts map[string]Contact
	err      error
}

func (f fakeContacts) Contact(_ context.Context, actor chat.Actor) (Contact, error) {
	if f.err != nil {
		return Contact{}, f.err
	}
	return f.contacts[actor.ChannelKey()], nil
}

type sentRecord struct {
	to  Contact
	msg *chat.Message
}

type fakeTransport struct {
	mu         sync.Mutex
	kind       string
	enabled    bool
	externalID string
	err        error
	sent       []sentRecord
}

func (f *fakeTransport) Kind() string  { return f.kind }
func (f *fakeTransport) Enabled() bool { return f.enabled }

func (f *fakeTransport) Send(_ context.Context, to Contact, msg *chat.Message, _ *chat.Conversation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentRecord{to: to, msg: msg})
	return f.externalID, nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeDedup) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}
