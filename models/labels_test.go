package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCOCOClasses(t *testing.T) {
	require.Len(t, COCOClasses.Classes, 80)
	for i, c := range COCOClasses.Classes {
		assert.Equal(t, i, c.Index, "class %q out of order", c.Name)
	}

	idx, ok := COCOClasses.IndexOf("truck")
	require.True(t, ok)
	assert.Equal(t, 7, idx)

	_, ok = COCOClasses.NameOf(80)
	assert.False(t, ok)
}

func TestResolveBuiltin(t *testing.T) {
	labels := BuiltinLabels()
	assert.False(t, labels.Custom())

	name, id := labels.Resolve(0)
	assert.Equal(t, "person", name)
	assert.Equal(t, 0, id)

	name, id = labels.Resolve(7)
	assert.Equal(t, "truck", name)
	assert.Equal(t, 7, id)
}

func TestResolveCustom(t *testing.T) {
	labels := NewCustomLabels([]string{"car", "pedestrian", "cyclist"})
	require.True(t, labels.Custom())

	tests := []struct {
		id       int
		wantName string
		wantID   int
	}{
		{0, "car", 0},
		{2, "cyclist", 2},
		{3, UnknownLabel, SentinelID},
		{5, UnknownLabel, SentinelID},
		{-1, UnknownLabel, SentinelID},
	}
	for _, tt := range tests {
		name, id := labels.Resolve(tt.id)
		assert.Equal(t, tt.wantName, name, "id %d", tt.id)
		assert.Equal(t, tt.wantID, id, "id %d", tt.id)
	}
}

func TestCustomLabelsAreCopied(t *testing.T) {
	src := []string{"a", "b"}
	labels := NewCustomLabels(src)
	src[0] = "changed"

	name, _ := labels.Resolve(0)
	assert.Equal(t, "a", name)

	names := labels.Names()
	names[1] = "changed"
	name, _ = labels.Resolve(1)
	assert.Equal(t, "b", name)
}

func TestLoadLabelFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.names")
	require.NoError(t, os.WriteFile(path, []byte("car\r\nbus\n\ntraffic cone\n"), 0o644))

	labels, err := LoadLabelFile(path)
	require.NoError(t, err)
	assert.True(t, labels.Custom())
	assert.Equal(t, []string{"car", "bus", "", "traffic cone"}, labels.Names())

	name, id := labels.Resolve(3)
	assert.Equal(t, "traffic cone", name)
	assert.Equal(t, 3, id)
}

func TestLoadLabelFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.names")

	labels, err := LoadLabelFile(path)
	require.Error(t, err)
	assert.Nil(t, labels)

	var lfErr *LabelFileError
	require.True(t, errors.As(err, &lfErr))
	assert.Equal(t, path, lfErr.Path)
	assert.True(t, os.IsNotExist(errors.Cause(lfErr.Err)))
}
