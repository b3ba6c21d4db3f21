// pkg/telemetry/telemetry.go - anonymous package-state events.

// Package telemetry queues install, uninstall and snapshot events on disk and
// posts them to a collection endpoint. One goroutine owns the queue files;
// every public method is an operation handed to that goroutine, so file
// updates never race. Delivery is at-least-once: an event stays queued until
// a POST for it succeeds, and unsent events are retried on the next flush.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/state"
)

const (
	PendingFile = "pending_events.json"
	MetaFile    = "package_state.json"

	// SnapshotInterval is the minimum time between two snapshot events.
	SnapshotInterval = 7 * 24 * time.Hour
)

// Event types.
const (
	TypeInstall   = "install"
	TypeUninstall = "uninstall"
	TypeSnapshot  = "snapshot"
)

var (
	ErrNotStarted = errors.New("telemetry client not started")
	ErrClosed     = errors.New("telemetry client closed")
)

// Event is one queued message.
type Event struct {
	UID           string   `json:"uid"`
	EventID       string   `json:"event_id"`
	TS            int64    `json:"ts"`
	Type          string   `json:"type"`
	ClientVersion string   `json:"client_version"`
	PackageID     string   `json:"package_id,omitempty"`
	Installed     []string `json:"installed,omitempty"`
}

// MarshalJSON always writes "installed" for snapshots, even when empty.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	if e.Type != TypeSnapshot {
		return json.Marshal(plain(e))
	}
	installed := e.Installed
	if installed == nil {
		installed = []string{}
	}
	return json.Marshal(struct {
		plain
		Installed []string `json:"installed"`
	}{plain(e), installed})
}

func (e Event) describe() string {
	if e.Type == TypeSnapshot {
		return fmt.Sprintf("type=snapshot installed=%d", len(e.Installed))
	}
	if e.PackageID != "" {
		return fmt.Sprintf("type=%s package_id=%s", e.Type, e.PackageID)
	}
	return "type=" + e.Type
}

type meta struct {
	UID            string `json:"uid"`
	LastSnapshotTS int64  `json:"last_snapshot_ts"`
}

// Options configure a Client.
type Options struct {
	Dir           string // holds the queue and meta files
	Endpoint      string // empty disables the client
	OptOut        bool
	ClientVersion string
	HTTPClient    *http.Client
	Now           func() time.Time
}

type op struct {
	fn   func()
	done chan struct{}
}

// Client is the telemetry actor.
type Client struct {
	opts Options

	mu      sync.Mutex
	ops     chan op
	stopped chan struct{}
	closed  bool
}

// New returns a client. Call Start before use and Close on shutdown.
func New(opts Options) *Client {
	opts.Endpoint = strings.TrimSpace(opts.Endpoint)
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{opts: opts}
}

// Enabled reports whether events are recorded at all.
func (c *Client) Enabled() bool {
	return c.opts.Endpoint != "" && !c.opts.OptOut
}

// Start launches the worker and flushes whatever an earlier session left
// queued.
func (c *Client) Start() {
	c.mu.Lock()
	if c.ops != nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.ops = make(chan op)
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	go c.run()
	go func() { _ = c.Flush() }()
}

func (c *Client) run() {
	defer close(c.stopped)
	for o := range c.ops {
		o.fn()
		close(o.done)
	}
}

// do runs fn on the worker and waits for it.
func (c *Client) do(fn func()) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ops == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	o := op{fn: fn, done: make(chan struct{})}
	// the send happens under the lock so Close cannot close ops underneath it
	c.ops <- o
	c.mu.Unlock()
	<-o.done
	return nil
}

// Record queues an event of typ for packageID and flushes.
func (c *Client) Record(typ, packageID string) error {
	return c.do(func() {
		if !c.Enabled() {
			return
		}
		id := strings.TrimSpace(packageID)
		if id == "" {
			return
		}
		e := c.newEvent(typ)
		e.PackageID = id
		queue := c.loadQueue()
		queue = append(queue, e)
		c.saveQueue(queue)
		c.flush(queue)
	})
}

// Snapshot queues the list of packages with a detected version, at most once
// per SnapshotInterval and only when no snapshot is already waiting.
func (c *Client) Snapshot(detected map[string]string) error {
	return c.do(func() {
		if !c.Enabled() {
			return
		}
		installed := make([]string, 0, len(detected))
		for id, v := range detected {
			if v != "" {
				installed = append(installed, id)
			}
		}
		sort.Strings(installed)

		m := c.loadMeta()
		queue := c.loadQueue()
		pending := false
		for _, e := range queue {
			if e.Type == TypeSnapshot {
				pending = true
				break
			}
		}
		now := c.opts.Now().Unix()
		due := m.LastSnapshotTS == 0 || time.Duration(now-m.LastSnapshotTS)*time.Second >= SnapshotInterval
		if !pending && due {
			e := c.newEvent(TypeSnapshot)
			e.Installed = installed
			queue = append(queue, e)
			c.saveQueue(queue)
		}
		c.flush(queue)
	})
}

// Flush posts queued events.
func (c *Client) Flush() error {
	return c.do(func() {
		if !c.Enabled() {
			return
		}
		c.flush(c.loadQueue())
	})
}

// Reset drops the queue and forgets when the last snapshot was sent.
func (c *Client) Reset() error {
	return c.do(func() {
		c.saveQueue(nil)
		m := c.loadMeta()
		m.LastSnapshotTS = 0
		c.saveMeta(m)
	})
}

// Pending returns the queued events.
func (c *Client) Pending() ([]Event, error) {
	var out []Event
	err := c.do(func() { out = c.loadQueue() })
	return out, err
}

// Close flushes and stops the worker.
func (c *Client) Close() error {
	if err := c.Flush(); errors.Is(err, ErrClosed) {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ops := c.ops
	c.mu.Unlock()
	if ops != nil {
		close(ops)
		<-c.stopped
	}
	return nil
}

func (c *Client) newEvent(typ string) Event {
	m := c.loadMeta()
	if m.UID == "" {
		m.UID = uuid.NewString()
		c.saveMeta(m)
	}
	return Event{
		UID:           m.UID,
		EventID:       uuid.NewString(),
		TS:            c.opts.Now().Unix(),
		Type:          typ,
		ClientVersion: c.opts.ClientVersion,
	}
}

// flush sends queue in order and keeps the first failure and everything after
// it for the next flush.
func (c *Client) flush(queue []Event) {
	if len(queue) == 0 {
		return
	}
	var remaining []Event
	for i, e := range queue {
		if err := c.post(e); err != nil {
			logging.Error("[package-state] send failed", "error", err)
			remaining = append(remaining, queue[i:]...)
			break
		}
		logging.Info("[package-state] sent " + e.describe())
		if e.Type == TypeSnapshot {
			m := c.loadMeta()
			if e.TS > m.LastSnapshotTS {
				m.LastSnapshotTS = e.TS
				c.saveMeta(m)
			}
		}
	}
	c.saveQueue(remaining)
}

func (c *Client) post(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) path(name string) string {
	return filepath.Join(c.opts.Dir, name)
}

func (c *Client) loadQueue() []Event {
	var queue []Event
	if !c.readJSON(PendingFile, &queue) {
		return nil
	}
	return queue
}

func (c *Client) saveQueue(queue []Event) {
	if len(queue) == 0 {
		if err := os.Remove(c.path(PendingFile)); err != nil && !os.IsNotExist(err) {
			logging.Error("[package-state] remove queue failed", "error", err)
		}
		return
	}
	c.writeJSON(PendingFile, queue)
}

func (c *Client) loadMeta() meta {
	var m meta
	c.readJSON(MetaFile, &m)
	return m
}

func (c *Client) saveMeta(m meta) {
	c.writeJSON(MetaFile, m)
}

func (c *Client) readJSON(name string, v interface{}) bool {
	data, err := os.ReadFile(c.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error("[package-state] read failed", "file", name, "error", err)
		}
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		logging.Error("[package-state] read failed", "file", name, "error", err)
		return false
	}
	return true
}

func (c *Client) writeJSON(name string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		err = state.WriteFileAtomic(c.path(name), data)
	}
	if err != nil {
		logging.Error("[package-state] write failed", "file", name, "error", err)
	}
}
