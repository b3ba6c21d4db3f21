// pkg/progress/reader.go - byte counting reader for downloads.

package progress

import (
	"io"
	"sync/atomic"
	"time"
)

// DefaultInterval throttles Reader callbacks.
const DefaultInterval = 100 * time.Millisecond

// Reader wraps an io.Reader and reports the cumulative byte count. Reports
// are throttled to one per interval, except that reaching total is always
// reported.
type Reader struct {
	reader     io.Reader
	total      *int64
	read       int64
	interval   time.Duration
	lastUpdate time.Time
	report     func(read int64, total *int64)
}

// NewReader creates a progress tracking reader. total may be nil when the
// size is unknown.
func NewReader(reader io.Reader, total *int64, interval time.Duration, report func(read int64, total *int64)) *Reader {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reader{
		reader:   reader,
		total:    total,
		interval: interval,
		report:   report,
	}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		read := atomic.AddInt64(&pr.read, int64(n))
		pr.update(read)
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return atomic.LoadInt64(&pr.read)
}

// Flush reports the current count unconditionally.
func (pr *Reader) Flush() {
	if pr.report != nil {
		pr.report(pr.BytesRead(), pr.total)
	}
}

func (pr *Reader) update(read int64) {
	if pr.report == nil {
		return
	}
	now := time.Now()
	complete := pr.total != nil && read >= *pr.total
	if !complete && !pr.lastUpdate.IsZero() && now.Sub(pr.lastUpdate) < pr.interval {
		return
	}
	pr.lastUpdate = now
	pr.report(read, pr.total)
}
