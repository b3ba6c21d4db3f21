// pkg/download/manager.go - source dispatch and progress correlation.

package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/config"
	"github.com/aviutl2catalog/catalog/pkg/events"
	"github.com/aviutl2catalog/catalog/pkg/session"
)

// ProgressFunc receives cumulative byte counts for one download. total is nil
// when the size is unknown.
type ProgressFunc func(read int64, total *int64)

// Manager routes a catalog source to its fetcher. Every call gets its own
// task id so concurrent downloads sharing the bus never see each other's
// progress.
type Manager struct {
	Bus    *events.Bus
	Direct *Direct
	GitHub *GitHub
	Drive  *Drive
	Booth  *Booth
}

// NewManager wires all fetchers to one HTTP client and bus.
func NewManager(cfg *config.Configuration, client *http.Client, bus *events.Bus, sess session.Provider) *Manager {
	if bus == nil {
		bus = events.NewBus()
	}
	direct := &Direct{Client: client, UserAgent: cfg.UserAgent, Bus: bus}
	return &Manager{
		Bus:    bus,
		Direct: direct,
		GitHub: &GitHub{Client: client, APIBase: cfg.GitHubAPIBase, UserAgent: cfg.UserAgent, Direct: direct},
		Drive:  &Drive{Client: client, BaseURL: cfg.DriveBaseURL, UserAgent: cfg.UserAgent, Bus: bus},
		Booth:  &Booth{Client: client, UserAgent: cfg.UserAgent, Session: sess, Bus: bus},
	}
}

// Fetch downloads src into destDir and returns the absolute file path.
func (m *Manager) Fetch(ctx context.Context, src catalog.Source, destDir string, onProgress ProgressFunc) (string, error) {
	taskID := uuid.NewString()
	if onProgress != nil && m.Bus != nil {
		forward := func(e events.Event) {
			if p, ok := e.Payload.(events.Progress); ok {
				onProgress(p.Read, p.Total)
			}
		}
		defer m.Bus.Subscribe(events.TopicDownloadProgress, taskID, forward)()
		defer m.Bus.Subscribe(events.TopicDriveProgress, taskID, forward)()
	}

	switch src.Kind() {
	case catalog.SourceDrive:
		return m.Drive.Fetch(ctx, src.GoogleDrive.ID, destDir, taskID)
	case catalog.SourceBooth:
		return m.Booth.Fetch(ctx, src.Booth, destDir, taskID)
	case catalog.SourceDirect:
		return m.Direct.Fetch(ctx, src.Direct, destDir, taskID)
	case catalog.SourceGitHub:
		return m.GitHub.Fetch(ctx, *src.GitHub, destDir, taskID)
	default:
		return "", &FetchError{Kind: catalog.SourceNone, Target: "", Err: errors.New("installer source is not configured")}
	}
}

// Describe names the source for log lines.
func Describe(src catalog.Source) string {
	switch src.Kind() {
	case catalog.SourceDrive:
		return "googleDrive:" + src.GoogleDrive.ID
	case catalog.SourceBooth:
		return "booth:" + src.Booth
	case catalog.SourceDirect:
		return src.Direct
	case catalog.SourceGitHub:
		return fmt.Sprintf("github:%s/%s", src.GitHub.Owner, src.GitHub.Repo)
	default:
		return "none"
	}
}
