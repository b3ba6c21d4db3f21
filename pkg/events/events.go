// pkg/events/events.go - in-process publish/subscribe for progress and auth signals.

// Package events carries asynchronous notifications between fetchers and
// their callers. Download progress is published on a named topic and tagged
// with the task id of the download, so any number of concurrent downloads can
// share one bus without seeing each other's ticks.
package events

import (
	"sync"
)

// Topics used by this module.
const (
	TopicDownloadProgress = "download:progress"
	TopicDriveProgress    = "drive:progress"
	TopicBoothLogin       = "booth-auth:login-complete"
)

// Event is one published message.
type Event struct {
	Topic   string
	TaskID  string
	Payload interface{}
}

// Progress is the payload of the download topics. Total is nil when the
// server did not announce a length.
type Progress struct {
	Read  int64
	Total *int64
}

// Handler receives events. It runs on the publisher's goroutine and must not
// block.
type Handler func(Event)

type subscription struct {
	id      uint64
	topic   string
	taskID  string
	handler Handler
}

// Bus is a synchronous, topic-keyed event bus. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscription
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for topic. A non-empty taskID limits delivery to
// events carrying that id. The returned func removes the subscription and is
// safe to call more than once.
func (b *Bus) Subscribe(topic, taskID string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[uint64]subscription)
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = subscription{id: id, topic: topic, taskID: taskID, handler: h}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Once returns a channel that receives the next event on topic and is then
// closed. The subscription is registered before Once returns, so an event
// published right after the call is not missed. Callers must call cancel
// once they are done waiting.
func (b *Bus) Once(topic string) (next <-chan Event, cancel func()) {
	ch := make(chan Event, 1)
	var (
		mu    sync.Mutex
		fired bool
	)
	unsubscribe := b.Subscribe(topic, "", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if fired {
			return
		}
		fired = true
		ch <- e
		close(ch)
	})
	return ch, unsubscribe
}

// Publish delivers e to every matching subscriber. A panicking handler is
// recovered so one bad listener cannot break a download.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic != e.Topic {
			continue
		}
		if s.taskID != "" && s.taskID != e.TaskID {
			continue
		}
		targets = append(targets, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		deliver(h, e)
	}
}

func deliver(h Handler, e Event) {
	defer func() { _ = recover() }()
	h(e)
}

// PublishProgress is shorthand for a download progress tick.
func (b *Bus) PublishProgress(topic, taskID string, read int64, total *int64) {
	if b == nil {
		return
	}
	b.Publish(Event{Topic: topic, TaskID: taskID, Payload: Progress{Read: read, Total: total}})
}
