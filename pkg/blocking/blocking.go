// pkg/blocking/blocking.go - refuses installer runs while the host application is open.

package blocking

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// PreconditionError is returned when the host application is running, or
// when it could not be determined whether it is.
type PreconditionError struct {
	App string
	Err error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not check whether %s is running: %v", e.App, e.Err)
	}
	return fmt.Sprintf("%s is running. Close it and try again.", e.App)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

type processEntry struct {
	Name string
	Exe  string
}

// Probe looks for a running process of one application.
type Probe struct {
	AppName string
	list    func() ([]processEntry, error)
}

// NewProbe returns a probe for appName. appName may be an absolute exe path,
// an exe file name, or a bare name without the .exe suffix.
func NewProbe(appName string) *Probe {
	return &Probe{AppName: appName, list: listProcesses}
}

// IsRunning reports whether the application has a live process.
func (p *Probe) IsRunning() (bool, error) {
	logging.Debug("Checking if application is running", "app", p.AppName)

	procs, err := p.list()
	if err != nil {
		return false, err
	}
	target := strings.ToLower(p.AppName)
	byPath := strings.HasPrefix(target, "/") || strings.HasPrefix(target, `c:\`) || strings.Contains(target, `:\`)

	for _, proc := range procs {
		name := strings.ToLower(proc.Name)
		switch {
		case byPath:
			if proc.Exe != "" && strings.EqualFold(proc.Exe, p.AppName) {
				logging.Debug("Found running app by exact path", "app", p.AppName, "process", proc.Exe)
				return true, nil
			}
		case strings.HasSuffix(target, ".exe"):
			if name == target {
				logging.Debug("Found running app by exe name", "app", p.AppName, "process", name)
				return true, nil
			}
		default:
			if name == target || name == target+".exe" {
				logging.Debug("Found running app by name", "app", p.AppName, "process", name)
				return true, nil
			}
		}
	}
	return false, nil
}

// Check returns a PreconditionError unless the application is known not to
// be running.
func (p *Probe) Check() error {
	running, err := p.IsRunning()
	if err != nil {
		logging.Error("Failed to get process list", "error", err)
		return &PreconditionError{App: p.AppName, Err: err}
	}
	if running {
		logging.Warn("Host application is running", "app", p.AppName)
		return &PreconditionError{App: p.AppName}
	}
	return nil
}

func listProcesses() ([]processEntry, error) {
	procs, err := process.Processes()
	if err != nil {
		logging.Warn("Process enumeration failed, trying fallback", "error", err)
		return listProcessesFallback()
	}
	out := make([]processEntry, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		exe, _ := proc.Exe()
		out = append(out, processEntry{Name: name, Exe: exe})
	}
	return out, nil
}
