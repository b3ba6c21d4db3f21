// pkg/process/process.go - bulk updates and working-directory housekeeping.

package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/fsops"
	"github.com/aviutl2catalog/catalog/pkg/installer"
	"github.com/aviutl2catalog/catalog/pkg/logging"
	"github.com/aviutl2catalog/catalog/pkg/progress"
	"github.com/aviutl2catalog/catalog/pkg/status"
)

// Installer is the part of installer.Engine that bulk updates need.
type Installer interface {
	Install(ctx context.Context, item catalog.Item, opts installer.RunOptions) error
}

// Progress is the aggregate position of a bulk update.
type Progress struct {
	Current int // 1-based index of the package being updated
	Total   int
	Ratio   float64
	Label   string
}

// ProgressFunc receives aggregate progress.
type ProgressFunc func(Progress)

// Result is the outcome of one package in a bulk update.
type Result struct {
	ID  string
	Err error
}

// Report collects the outcome of UpdateAll in catalog order.
type Report struct {
	Results []Result
}

// Failed returns the results that carry an error.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Updatable lists the items that are installed, are not at their latest
// version and have steps that can be run. The detected version wins over the
// recorded one when both exist.
func Updatable(items []catalog.Item, installed, detected map[string]string) []catalog.Item {
	var out []catalog.Item
	for _, it := range items {
		current := detected[it.ID]
		if current == "" {
			current = installed[it.ID]
		}
		if current == "" {
			continue
		}
		if !it.HasInstaller() || len(it.InstallSteps()) == 0 {
			logging.Debug("[BulkUpdate] "+it.ID+": no runnable installer, skipping", "version", current)
			continue
		}
		if !status.UpdateAvailable(it, current) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// UpdateAll installs each item in turn. A failing package is logged and the
// loop moves on; only cancellation of ctx stops it early, in which case the
// remaining packages are reported with ctx's error.
func UpdateAll(ctx context.Context, inst Installer, items []catalog.Item, onProgress ProgressFunc) Report {
	total := len(items)
	report := Report{Results: make([]Result, 0, total)}
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if total == 0 {
		emit(Progress{Ratio: 1, Label: "Nothing to update"})
		return report
	}

	last := 0.0
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			logging.Warn("[BulkUpdate] "+it.ID+": cancelled", "error", err)
			report.Results = append(report.Results, Result{ID: it.ID, Err: err})
			continue
		}
		name := displayName(it)
		opts := installer.RunOptions{OnProgress: func(r progress.Record) {
			ratio := (float64(i) + r.Ratio) / float64(total)
			if ratio < last {
				ratio = last
			}
			last = ratio
			emit(Progress{
				Current: i + 1,
				Total:   total,
				Ratio:   ratio,
				Label:   fmt.Sprintf("%s (%d/%d): %s", name, i+1, total, r.Label),
			})
		}}

		err := inst.Install(ctx, it, opts)
		if err != nil {
			logging.Error(fmt.Sprintf("[BulkUpdate] %s: %v", it.ID, err))
		} else {
			logging.Info("[BulkUpdate] "+it.ID+": updated", "version", it.LatestVersionOf())
		}
		report.Results = append(report.Results, Result{ID: it.ID, Err: err})

		// a failed package still counts as processed
		if done := float64(i+1) / float64(total); done > last {
			last = done
		}
	}

	failed := len(report.Failed())
	emit(Progress{
		Current: total,
		Total:   total,
		Ratio:   1,
		Label:   fmt.Sprintf("Updated %d of %d packages", total-failed, total),
	})
	return report
}

func displayName(it catalog.Item) string {
	if it.Name != "" {
		return it.Name
	}
	return it.ID
}

// StaleAge is how old a working directory must be before CleanUp removes it.
const StaleAge = 5 * 24 * time.Hour

// dirEmpty returns true if the directory is empty
func dirEmpty(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	_, err = f.Readdir(1)
	return err == io.EOF
}

// CleanUp removes working directories under tempRoot that were left behind
// by interrupted runs or dev mode and are older than maxAge.
func CleanUp(tempRoot string, maxAge time.Duration, now time.Time) {
	base := filepath.Join(tempRoot, installer.TempDirName)
	entries, err := os.ReadDir(base)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Error reading working directories", "path", base, "error", err)
		}
		return
	}

	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			logging.Warn("Failed to access path", "path", e.Name(), "error", err)
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		path := filepath.Join(base, e.Name())
		logging.Info("Cleaning stale working directory", "directory", path)
		if _, err := fsops.DeletePath(path); err != nil {
			logging.Error("Failed to remove working directory", "directory", path, "error", err)
		}
	}

	if dirEmpty(base) {
		if err := os.Remove(base); err != nil {
			logging.Debug("Failed to remove empty directory", "directory", base, "error", err)
		}
	}
}
