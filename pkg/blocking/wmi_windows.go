//go:build windows

package blocking

import (
	"github.com/yusufpapurcu/wmi"
)

type win32Process struct {
	Name           string
	ExecutablePath *string
}

// listProcessesFallback asks WMI for the process table.
func listProcessesFallback() ([]processEntry, error) {
	var rows []win32Process
	if err := wmi.Query("SELECT Name, ExecutablePath FROM Win32_Process", &rows); err != nil {
		return nil, err
	}
	out := make([]processEntry, 0, len(rows))
	for _, r := range rows {
		e := processEntry{Name: r.Name}
		if r.ExecutablePath != nil {
			e.Exe = *r.ExecutablePath
		}
		out = append(out, e)
	}
	return out, nil
}
