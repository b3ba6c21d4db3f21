// pkg/filter/filter.go - narrows catalog item lists by id and type.

package filter

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// ItemFilter holds the filtering configuration
type ItemFilter struct {
	items []string
	types []string
}

// NewItemFilter creates a new ItemFilter instance
func NewItemFilter() *ItemFilter {
	return &ItemFilter{}
}

// RegisterFlags registers --item and --type on fs.
func (f *ItemFilter) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(
		&f.items,
		"item",
		nil,
		"Only consider the specified package id(s). "+
			"Can be repeated or given as a comma-separated list.",
	)
	fs.StringSliceVar(
		&f.types,
		"type",
		nil,
		"Only consider packages of the given catalog type(s).",
	)
}

// SetItems allows setting the id filter programmatically
func (f *ItemFilter) SetItems(items []string) {
	f.items = items
}

// SetTypes allows setting the type filter programmatically
func (f *ItemFilter) SetTypes(types []string) {
	f.types = types
}

// HasFilter returns true if any criterion is set
func (f *ItemFilter) HasFilter() bool {
	return len(f.items) > 0 || len(f.types) > 0
}

// Apply returns the catalog items that match every criterion. Matching is
// case-insensitive. With no filter set, items are returned unchanged.
func (f *ItemFilter) Apply(all []catalog.Item) []catalog.Item {
	if !f.HasFilter() {
		return all
	}

	ids := lookup(f.items)
	types := lookup(f.types)
	var filtered []catalog.Item
	for _, it := range all {
		if len(ids) > 0 {
			if _, ok := ids[strings.ToLower(it.ID)]; !ok {
				continue
			}
		}
		if len(types) > 0 {
			if _, ok := types[strings.ToLower(it.Type)]; !ok {
				continue
			}
		}
		filtered = append(filtered, it)
	}

	logging.Debug("Filtered catalog items", "matched", len(filtered), "of", len(all))
	return filtered
}

func lookup(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}
