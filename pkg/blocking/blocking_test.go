package blocking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probeWith(app string, procs []processEntry, err error) *Probe {
	return &Probe{AppName: app, list: func() ([]processEntry, error) { return procs, err }}
}

func TestIsRunningMatching(t *testing.T) {
	procs := []processEntry{
		{Name: "explorer.exe", Exe: `C:\Windows\explorer.exe`},
		{Name: "AviUtl2.exe", Exe: `C:\Apps\AviUtl2\aviutl2.exe`},
	}
	cases := map[string]bool{
		"aviutl2.exe":                  true,
		"AVIUTL2":                      true,
		`C:\Apps\AviUtl2\aviutl2.exe`:  true,
		`C:\Other\aviutl2.exe`:         false,
		"aviutl":                       false,
	}
	for app, want := range cases {
		got, err := probeWith(app, procs, nil).IsRunning()
		require.NoError(t, err)
		assert.Equal(t, want, got, app)
	}
}

func TestCheckRunningIsPrecondition(t *testing.T) {
	err := probeWith("aviutl2.exe", []processEntry{{Name: "aviutl2.exe"}}, nil).Check()
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Nil(t, pe.Err)
	assert.Contains(t, err.Error(), "aviutl2.exe is running")
}

func TestCheckProbeFailureIsFatal(t *testing.T) {
	boom := errors.New("access denied")
	err := probeWith("aviutl2.exe", nil, boom).Check()
	var pe *PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, boom)
}

func TestCheckNotRunning(t *testing.T) {
	assert.NoError(t, probeWith("aviutl2.exe", []processEntry{{Name: "code.exe"}}, nil).Check())
}

func TestLiveProbeDoesNotFail(t *testing.T) {
	_, err := NewProbe("definitely-not-a-real-process.exe").IsRunning()
	assert.NoError(t, err)
}
