package filter

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
)

var items = []catalog.Item{
	{ID: "Kenkun.AviUtlExEdit2", Type: "本体"},
	{ID: "rigaya.x264guiEx", Type: "出力プラグイン"},
	{ID: "someone.Script", Type: "スクリプト"},
}

func ids(in []catalog.Item) []string {
	var out []string
	for _, it := range in {
		out = append(out, it.ID)
	}
	return out
}

func TestNoFilterReturnsAll(t *testing.T) {
	f := NewItemFilter()
	assert.False(t, f.HasFilter())
	assert.Equal(t, items, f.Apply(items))
}

func TestFlagsFilterByIDAndType(t *testing.T) {
	f := NewItemFilter()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--item", "kenkun.aviutlexedit2, RIGAYA.x264guiEx"}))

	assert.Equal(t, []string{"Kenkun.AviUtlExEdit2", "rigaya.x264guiEx"}, ids(f.Apply(items)))

	f.SetTypes([]string{"出力プラグイン"})
	assert.Equal(t, []string{"rigaya.x264guiEx"}, ids(f.Apply(items)))
}

func TestNoMatch(t *testing.T) {
	f := NewItemFilter()
	f.SetItems([]string{"missing"})
	assert.Empty(t, f.Apply(items))
}
