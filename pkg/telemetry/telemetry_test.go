package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []map[string]interface{}
	fail   bool
}

func (c *collector) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var e map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		c.events = append(c.events, e)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *collector) setFail(v bool) {
	c.mu.Lock()
	c.fail = v
	c.mu.Unlock()
}

func (c *collector) received() []map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]interface{}(nil), c.events...)
}

func newClient(t *testing.T, dir, endpoint string, now *time.Time) *Client {
	c := New(Options{
		Dir:           dir,
		Endpoint:      endpoint,
		ClientVersion: "1.2.3",
		Now:           func() time.Time { return *now },
	})
	c.Start()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRecordSendsEvent(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	now := time.Unix(1700000000, 0)
	c := newClient(t, t.TempDir(), srv.URL, &now)

	require.NoError(t, c.Record(TypeInstall, "demo.plugin"))
	require.NoError(t, c.Record(TypeInstall, "  "))

	got := col.received()
	require.Len(t, got, 1)
	e := got[0]
	assert.Equal(t, "install", e["type"])
	assert.Equal(t, "demo.plugin", e["package_id"])
	assert.Equal(t, "1.2.3", e["client_version"])
	assert.EqualValues(t, 1700000000, e["ts"])
	assert.NotEmpty(t, e["uid"])
	assert.NotEmpty(t, e["event_id"])
	assert.NotContains(t, e, "installed")

	pending, err := c.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailedSendStaysQueuedInOrder(t *testing.T) {
	col := &collector{fail: true}
	srv := col.server(t)
	now := time.Unix(1700000000, 0)
	c := newClient(t, t.TempDir(), srv.URL, &now)

	require.NoError(t, c.Record(TypeInstall, "a"))
	require.NoError(t, c.Record(TypeUninstall, "b"))
	pending, err := c.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].PackageID)
	assert.Equal(t, pending[0].UID, pending[1].UID)

	col.setFail(false)
	require.NoError(t, c.Flush())
	got := col.received()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["package_id"])
	assert.Equal(t, "b", got[1]["package_id"])
}

func TestSnapshotIsThrottled(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	now := time.Unix(1700000000, 0)
	c := newClient(t, t.TempDir(), srv.URL, &now)

	detected := map[string]string{"b": "1", "a": "2", "gone": ""}
	require.NoError(t, c.Snapshot(detected))
	require.NoError(t, c.Snapshot(detected))
	got := col.received()
	require.Len(t, got, 1)
	assert.Equal(t, []interface{}{"a", "b"}, got[0]["installed"])

	now = now.Add(SnapshotInterval)
	require.NoError(t, c.Snapshot(map[string]string{}))
	got = col.received()
	require.Len(t, got, 2)
	assert.Equal(t, []interface{}{}, got[1]["installed"])
}

func TestSnapshotNotDuplicatedWhilePending(t *testing.T) {
	col := &collector{fail: true}
	srv := col.server(t)
	now := time.Unix(1700000000, 0)
	c := newClient(t, t.TempDir(), srv.URL, &now)

	require.NoError(t, c.Snapshot(map[string]string{"a": "1"}))
	require.NoError(t, c.Snapshot(map[string]string{"a": "1"}))
	pending, err := c.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, c.Reset())
	pending, err = c.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDisabledClientIsNoop(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	c := newClient(t, dir, "", &now)
	assert.False(t, c.Enabled())
	require.NoError(t, c.Record(TypeInstall, "a"))
	require.NoError(t, c.Snapshot(map[string]string{"a": "1"}))
	_, err := os.Stat(filepath.Join(dir, PendingFile))
	assert.True(t, os.IsNotExist(err))

	opted := New(Options{Dir: dir, Endpoint: "https://example.invalid", OptOut: true})
	assert.False(t, opted.Enabled())
}

func TestStartFlushesEarlierQueue(t *testing.T) {
	dir := t.TempDir()
	queued := []Event{{UID: "u", EventID: "e1", TS: 1, Type: TypeInstall, PackageID: "left.over"}}
	data, err := json.Marshal(queued)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PendingFile), data, 0644))

	col := &collector{}
	srv := col.server(t)
	now := time.Now()
	c := newClient(t, dir, srv.URL, &now)
	require.NoError(t, c.Flush())

	got := col.received()
	require.Len(t, got, 1)
	assert.Equal(t, "left.over", got[0]["package_id"])
}

func TestClosedClientRejectsOps(t *testing.T) {
	now := time.Now()
	c := New(Options{Dir: t.TempDir(), Now: func() time.Time { return now }})
	assert.ErrorIs(t, c.Record(TypeInstall, "a"), ErrNotStarted)
	c.Start()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Flush(), ErrClosed)
}
