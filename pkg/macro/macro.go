// pkg/macro/macro.go - placeholder substitution for installer step fields.

// Package macro expands the {name} tokens that installer steps use to refer
// to host directories and to the artifact produced by the last download.
package macro

import "strings"

// Recognized tokens.
const (
	TokenTmp      = "{tmp}"
	TokenAppDir   = "{appDir}"
	TokenPlugins  = "{pluginsDir}"
	TokenScripts  = "{scriptsDir}"
	TokenData     = "{dataDir}"
	TokenDownload = "{download}"
)

// Context carries the resolved absolute paths a template may refer to. It is
// a value type: steps derive new contexts with WithDownload instead of
// mutating a shared one.
type Context struct {
	Tmp          string
	AppDir       string
	PluginsDir   string
	ScriptsDir   string
	DataDir      string
	DownloadPath string
}

// WithDownload returns a copy whose {download} resolves to path.
func (c Context) WithDownload(path string) Context {
	c.DownloadPath = path
	return c
}

// pairs lists tokens in a fixed order. Values never get re-scanned, so a
// directory name containing "{tmp}" is left alone.
func (c Context) pairs() []string {
	return []string{
		TokenTmp, c.Tmp,
		TokenAppDir, c.AppDir,
		TokenPlugins, c.PluginsDir,
		TokenScripts, c.ScriptsDir,
		TokenData, c.DataDir,
		TokenDownload, c.DownloadPath,
	}
}

// Expand replaces every recognized token in template with its value from ctx.
// Unknown tokens and text without tokens come back unchanged.
func Expand(template string, ctx Context) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return strings.NewReplacer(ctx.pairs()...).Replace(template)
}

// ExpandAll expands each element independently.
func ExpandAll(templates []string, ctx Context) []string {
	if templates == nil {
		return nil
	}
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = Expand(t, ctx)
	}
	return out
}
