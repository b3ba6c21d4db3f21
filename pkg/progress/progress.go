// pkg/progress/progress.go - progress records for installer runs.

package progress

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
)

// Phase is the state of a run at the time a record was emitted.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseRunning      Phase = "running"
	PhaseStepComplete Phase = "step-complete"
	PhaseError        Phase = "error"
	PhaseDone         Phase = "done"
)

var stepLabels = map[catalog.Action]string{
	catalog.ActionDownload:    "Downloading",
	catalog.ActionExtract:     "Extracting",
	catalog.ActionExtractSFX:  "Extracting",
	catalog.ActionCopy:        "Copying",
	catalog.ActionDelete:      "Deleting",
	catalog.ActionRun:         "Running",
	catalog.ActionRunAuoSetup: "Running",
}

// Record is one progress snapshot. Step is empty and StepIndex is -1 when no
// step applies; both encode as JSON null.
type Record struct {
	Ratio      float64
	Percent    int
	Step       catalog.Action
	StepIndex  int
	TotalSteps int
	Label      string
	Phase      Phase
}

// MarshalJSON renders the wire shape used by UI listeners.
func (r Record) MarshalJSON() ([]byte, error) {
	var step *string
	if r.Step != "" {
		s := string(r.Step)
		step = &s
	}
	var idx *int
	if r.StepIndex >= 0 {
		i := r.StepIndex
		idx = &i
	}
	return json.Marshal(struct {
		Ratio      float64 `json:"ratio"`
		Percent    int     `json:"percent"`
		Step       *string `json:"step"`
		StepIndex  *int    `json:"stepIndex"`
		TotalSteps int     `json:"totalSteps"`
		Label      string  `json:"label"`
		Phase      Phase   `json:"phase"`
	}{r.Ratio, r.Percent, step, idx, r.TotalSteps, r.Label, r.Phase})
}

// Func receives progress records.
type Func func(Record)

// Tracker turns step transitions and download ticks into records whose ratio
// never decreases during a run. Every finished step is worth one unit; only a
// running download contributes a fraction.
type Tracker struct {
	mu      sync.Mutex
	total   int
	units   float64
	unknown float64
	emit    Func
}

// UnknownSizeIncrement is the share of a step added per tick when the
// download size is unknown.
const UnknownSizeIncrement = 0.05

// NewTracker returns a tracker for a run of totalSteps steps. A nil emit is
// allowed.
func NewTracker(totalSteps int, emit Func) *Tracker {
	return &Tracker{total: totalSteps, emit: emit}
}

// Init emits the initial record.
func (t *Tracker) Init() {
	t.publish(0, "", -1, PhaseInit)
}

// Running marks step idx as started.
func (t *Tracker) Running(idx int, action catalog.Action) {
	t.mu.Lock()
	t.unknown = float64(idx)
	t.mu.Unlock()
	t.publish(float64(idx), action, idx, PhaseRunning)
}

// Download records byte progress for the download step at idx. With a known
// total the step advances in proportion to read/total; otherwise each tick
// adds a small fixed increment and stops just short of the next unit.
func (t *Tracker) Download(idx int, action catalog.Action, read int64, total *int64) {
	var units float64
	switch {
	case total != nil && *total > 0:
		ratio := math.Min(1, math.Max(0, float64(read)/float64(*total)))
		units = float64(idx) + ratio
	case read > 0:
		t.mu.Lock()
		t.unknown = math.Min(float64(idx+1)-0.01, t.unknown+UnknownSizeIncrement)
		units = t.unknown
		t.mu.Unlock()
	default:
		return
	}
	t.publish(units, action, idx, PhaseRunning)
}

// StepComplete marks step idx as finished.
func (t *Tracker) StepComplete(idx int, action catalog.Action) {
	t.publish(float64(idx+1), action, idx, PhaseStepComplete)
}

// Error marks step idx as failed.
func (t *Tracker) Error(idx int, action catalog.Action) {
	t.publish(float64(idx), action, idx, PhaseError)
}

// Done emits the final record with ratio 1.
func (t *Tracker) Done() {
	t.publish(float64(t.total), "", -1, PhaseDone)
}

// Ratio returns the ratio of the last emitted record.
func (t *Tracker) Ratio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratioLocked(PhaseRunning)
}

func (t *Tracker) ratioLocked(phase Phase) float64 {
	if t.total <= 0 {
		if phase == PhaseDone {
			return 1
		}
		return 0
	}
	return math.Min(1, math.Max(0, t.units/float64(t.total)))
}

func (t *Tracker) publish(units float64, action catalog.Action, idx int, phase Phase) {
	t.mu.Lock()
	if units > t.units {
		t.units = units
	}
	ratio := t.ratioLocked(phase)
	rec := Record{
		Ratio:      ratio,
		Percent:    int(math.Round(ratio * 100)),
		Step:       action,
		StepIndex:  idx,
		TotalSteps: t.total,
		Label:      label(action, phase),
		Phase:      phase,
	}
	emit := t.emit
	t.mu.Unlock()

	if emit == nil {
		return
	}
	defer func() { _ = recover() }()
	emit(rec)
}

func label(action catalog.Action, phase Phase) string {
	switch phase {
	case PhaseDone:
		return "Done"
	case PhaseInit:
		return "Preparing…"
	case PhaseError:
		return "Error"
	}
	if l, ok := stepLabels[action]; ok {
		return l
	}
	return "Working…"
}
