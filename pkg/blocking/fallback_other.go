//go:build !windows

package blocking

import "errors"

func listProcessesFallback() ([]processEntry, error) {
	return nil, errors.New("process enumeration unavailable")
}
