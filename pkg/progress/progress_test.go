package progress

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
)

func collect() (*[]Record, Func) {
	var out []Record
	return &out, func(r Record) { out = append(out, r) }
}

func TestTrackerSequence(t *testing.T) {
	recs, emit := collect()
	tr := NewTracker(2, emit)

	tr.Init()
	tr.Running(0, catalog.ActionDownload)
	total := int64(100)
	tr.Download(0, catalog.ActionDownload, 50, &total)
	tr.StepComplete(0, catalog.ActionDownload)
	tr.Running(1, catalog.ActionCopy)
	tr.StepComplete(1, catalog.ActionCopy)
	tr.Done()

	got := *recs
	require.Len(t, got, 7)
	assert.Equal(t, PhaseInit, got[0].Phase)
	assert.Equal(t, "Preparing…", got[0].Label)
	assert.Equal(t, -1, got[0].StepIndex)
	assert.InDelta(t, 0.25, got[2].Ratio, 1e-9)
	assert.Equal(t, "Downloading", got[2].Label)
	assert.InDelta(t, 0.5, got[3].Ratio, 1e-9)
	assert.Equal(t, "Copying", got[4].Label)
	assert.Equal(t, PhaseDone, got[6].Phase)
	assert.Equal(t, 1.0, got[6].Ratio)
	assert.Equal(t, 100, got[6].Percent)
	assert.Equal(t, "Done", got[6].Label)
}

func TestTrackerZeroSteps(t *testing.T) {
	recs, emit := collect()
	tr := NewTracker(0, emit)
	tr.Init()
	tr.Done()

	require.Len(t, *recs, 2)
	assert.Equal(t, 0.0, (*recs)[0].Ratio)
	assert.Equal(t, 1.0, (*recs)[1].Ratio)
}

func TestTrackerUnknownSizeStopsShortOfNextStep(t *testing.T) {
	recs, emit := collect()
	tr := NewTracker(1, emit)
	tr.Running(0, catalog.ActionDownload)
	for i := 0; i < 100; i++ {
		tr.Download(0, catalog.ActionDownload, int64(i+1)*10, nil)
	}
	last := (*recs)[len(*recs)-1]
	assert.InDelta(t, 0.99, last.Ratio, 1e-9)
	assert.Less(t, last.Ratio, 1.0)
}

func TestTrackerErrorDoesNotGoBackwards(t *testing.T) {
	recs, emit := collect()
	tr := NewTracker(2, emit)
	tr.Running(0, catalog.ActionCopy)
	tr.StepComplete(0, catalog.ActionCopy)
	tr.Running(1, catalog.ActionRun)
	tr.Error(1, catalog.ActionRun)

	last := (*recs)[len(*recs)-1]
	assert.Equal(t, PhaseError, last.Phase)
	assert.Equal(t, "Error", last.Label)
	assert.InDelta(t, 0.5, last.Ratio, 1e-9)
}

func TestTrackerRecoversPanickingCallback(t *testing.T) {
	tr := NewTracker(1, func(Record) { panic("listener bug") })
	assert.NotPanics(t, func() {
		tr.Init()
		tr.Done()
	})
}

func TestRecordJSONNulls(t *testing.T) {
	data, err := json.Marshal(Record{Ratio: 0, StepIndex: -1, TotalSteps: 3, Label: "Preparing…", Phase: PhaseInit})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"step":null`)
	assert.Contains(t, string(data), `"stepIndex":null`)

	data, err = json.Marshal(Record{Step: catalog.ActionCopy, StepIndex: 0, Phase: PhaseRunning})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"step":"copy"`)
	assert.Contains(t, string(data), `"stepIndex":0`)
}

func TestRatioIsMonotonic(t *testing.T) {
	actions := []catalog.Action{catalog.ActionDownload, catalog.ActionCopy, catalog.ActionRun}
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "steps")
		var ratios []float64
		tr := NewTracker(n, func(r Record) { ratios = append(ratios, r.Ratio) })
		tr.Init()
		failAt := rapid.IntRange(-1, n-1).Draw(t, "failAt")
		for i := 0; i < n; i++ {
			a := rapid.SampledFrom(actions).Draw(t, "action")
			tr.Running(i, a)
			ticks := rapid.IntRange(0, 30).Draw(t, "ticks")
			known := rapid.Bool().Draw(t, "known")
			size := int64(1000)
			var read int64
			for k := 0; k < ticks; k++ {
				read += rapid.Int64Range(1, 200).Draw(t, "chunk")
				if known {
					tr.Download(i, a, read, &size)
				} else {
					tr.Download(i, a, read, nil)
				}
			}
			if i == failAt {
				tr.Error(i, a)
				break
			}
			tr.StepComplete(i, a)
		}
		if failAt < 0 {
			tr.Done()
			if ratios[len(ratios)-1] != 1 {
				t.Fatalf("done ratio %v", ratios[len(ratios)-1])
			}
		}
		for i := 1; i < len(ratios); i++ {
			if ratios[i] < ratios[i-1] {
				t.Fatalf("ratio decreased at %d: %v -> %v", i, ratios[i-1], ratios[i])
			}
			if ratios[i] < 0 || ratios[i] > 1 {
				t.Fatalf("ratio out of range: %v", ratios[i])
			}
		}
	})
}

func TestReaderReportsFinalCount(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	total := int64(len(payload))
	var last int64
	var calls int
	r := NewReader(strings.NewReader(payload), &total, time.Hour, func(read int64, _ *int64) {
		last = read
		calls++
	})
	var sink bytes.Buffer
	_, err := io.CopyBuffer(struct{ io.Writer }{&sink}, r, make([]byte, 512))
	require.NoError(t, err)

	assert.Equal(t, total, last)
	assert.Equal(t, total, r.BytesRead())
	// first chunk plus the completing chunk; the rest are throttled
	assert.Equal(t, 2, calls)
}

func TestReaderUnknownTotalFlush(t *testing.T) {
	var last int64
	r := NewReader(strings.NewReader("abcdef"), nil, time.Hour, func(read int64, total *int64) {
		assert.Nil(t, total)
		last = read
	})
	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)
	r.Flush()
	assert.Equal(t, int64(6), last)
}
