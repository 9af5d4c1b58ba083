package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/relata/pkg/memstore"
)

func TestCELEngine_Filter(t *testing.T) {
	engine, err := NewCELEngine(nil)
	require.NoError(t, err)

	filter, err := engine.Filter(`candidate.owner_id == subject.id`)
	require.NoError(t, err)

	owner := memstore.NewModel(map[string]any{"id": 3})
	tests := []struct {
		name      string
		candidate map[string]any
		want      bool
	}{
		{"match", map[string]any{"id": 10, "owner_id": 3}, true},
		{"other owner", map[string]any{"id": 11, "owner_id": 4}, false},
		{"missing attribute", map[string]any{"id": 12}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter(owner, memstore.NewModel(tt.candidate)))
		})
	}
}

func TestCELEngine_FilterRejectsNonBoolean(t *testing.T) {
	engine, err := NewCELEngine(nil)
	require.NoError(t, err)

	_, err = engine.Filter(`1 + 2`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return boolean")

	_, err = engine.Filter(`candidate.id ==`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile CEL expression")
}

func TestCELEngine_Computed(t *testing.T) {
	engine, err := NewCELEngine(nil)
	require.NoError(t, err)

	fullName, err := engine.Computed(`"Project " + subject.name`)
	require.NoError(t, err)
	assert.Equal(t, "Project alpha", fullName(memstore.NewModel(map[string]any{"name": "alpha"})))

	// Evaluation errors read as nil
	assert.Nil(t, fullName(memstore.NewModel(map[string]any{"id": 1})))

	double, err := engine.Computed(`subject.points * 2`)
	require.NoError(t, err)
	assert.Equal(t, int64(8), double(memstore.NewModel(map[string]any{"points": 4})))
}

func TestAttributesOf(t *testing.T) {
	assert.Equal(t, map[string]any{}, attributesOf(nil))

	m := memstore.NewModel(map[string]any{"id": 1, "name": "x"})
	assert.Equal(t, map[string]any{"id": 1, "name": "x"}, attributesOf(m))
}
