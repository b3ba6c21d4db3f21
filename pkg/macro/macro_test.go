package macro

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var sample = Context{
	Tmp:          `C:\cfg\installer-tmp\pkg-1.0`,
	AppDir:       `C:\aviutl2`,
	PluginsDir:   `C:\ProgramData\aviutl2\Plugin`,
	ScriptsDir:   `C:\ProgramData\aviutl2\Script`,
	DataDir:      `C:\ProgramData\aviutl2`,
	DownloadPath: `C:\cfg\installer-tmp\pkg-1.0\file.zip`,
}

func TestExpandEachToken(t *testing.T) {
	cases := map[string]string{
		"{tmp}/out":           sample.Tmp + "/out",
		"{appDir}":            sample.AppDir,
		"{pluginsDir}\\x.dll": sample.PluginsDir + `\x.dll`,
		"{scriptsDir}":        sample.ScriptsDir,
		"{dataDir}":           sample.DataDir,
		"{download}":          sample.DownloadPath,
		"{tmp}{tmp}":          sample.Tmp + sample.Tmp,
		"{unknown}/{tmp":      "{unknown}/{tmp",
	}
	for in, want := range cases {
		assert.Equal(t, want, Expand(in, sample), in)
	}
}

func TestExpandIsNotRecursive(t *testing.T) {
	ctx := Context{Tmp: "{appDir}", AppDir: "root"}
	assert.Equal(t, "{appDir}/x", Expand("{tmp}/x", ctx))
}

func TestWithDownloadDoesNotMutate(t *testing.T) {
	next := sample.WithDownload("other.zip")
	assert.Equal(t, "other.zip", Expand("{download}", next))
	assert.Equal(t, sample.DownloadPath, Expand("{download}", sample))
}

func TestExpandAll(t *testing.T) {
	assert.Nil(t, ExpandAll(nil, sample))
	assert.Equal(t, []string{"-d", sample.AppDir}, ExpandAll([]string{"-d", "{appDir}"}, sample))
}

func TestExpandWithoutTokensIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Filter(func(s string) bool {
			for _, tok := range []string{TokenTmp, TokenAppDir, TokenPlugins, TokenScripts, TokenData, TokenDownload} {
				if strings.Contains(s, tok) {
					return false
				}
			}
			return true
		}).Draw(t, "s")
		if got := Expand(s, sample); got != s {
			t.Fatalf("Expand(%q) = %q", s, got)
		}
	})
}

func TestExpandIsDeterministic(t *testing.T) {
	tokens := []string{TokenTmp, TokenAppDir, TokenPlugins, TokenScripts, TokenData, TokenDownload, "/", "x", " "}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOf(rapid.SampledFrom(tokens)).Draw(t, "parts")
		s := strings.Join(parts, "")
		if Expand(s, sample) != Expand(s, sample) {
			t.Fatalf("Expand(%q) not stable", s)
		}
		if strings.Contains(Expand(s, sample), "{") {
			t.Fatalf("Expand(%q) left a token behind", s)
		}
	})
}
