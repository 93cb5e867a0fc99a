package params

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaExport(t *testing.T) {
	set := NewSetOf(
		Spec{Name: "count", Default: 3, Doc: "number of widgets", Min: floatPtr(0), Max: floatPtr(10)},
		Spec{Name: "label", Default: "hello"},
	)

	schema := set.Schema("widget-stage")
	assert.Equal(t, "widget-stage", schema.Title)
	assert.Equal(t, "object", schema.Type)

	count, ok := schema.Properties.Get("count")
	require.True(t, ok)
	assert.Equal(t, "integer", count.Type)
	assert.Equal(t, "number of widgets", count.Description)
	assert.Equal(t, json.Number("0"), count.Minimum)
	assert.Equal(t, json.Number("10"), count.Maximum)
	assert.Equal(t, 3, count.Default)

	label, ok := schema.Properties.Get("label")
	require.True(t, ok)
	assert.Equal(t, "string", label.Type)

	// Declaration order is preserved in the exported properties.
	keys := make([]string, 0, 2)
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"count", "label"}, keys)
}
