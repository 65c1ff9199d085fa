package pascalgt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToLabelMap(t *testing.T) {
	t.Parallel()

	labelMap := ToLabelMap(BuildClassMap(testSets()))
	require.Len(t, labelMap.Item, 3)
	for i, want := range []string{"dog", "cat", "hotdog"} {
		assert.Equal(t, want, labelMap.Item[i].GetName())
		assert.Equal(t, want, labelMap.Item[i].GetDisplayName())
		assert.Equal(t, int32(i+1), labelMap.Item[i].GetId())
	}
}

func TestLabelMap_WriteRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "label_map.pbtxt")
	classes := BuildClassMap(testSets())
	require.NoError(t, WriteLabelMap(path, classes))

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `name: "hotdog"`)
	assert.Contains(t, string(text), `id: 3`)

	loaded, err := ReadLabelMap(path)
	require.NoError(t, err)
	assert.Equal(t, classes.Names(), loaded.Names())
	id, ok := loaded.ID("cat")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestReadLabelMap_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := ReadLabelMap(filepath.Join(dir, "missing.pbtxt"))
	assert.True(t, os.IsNotExist(err))

	for name, text := range map[string]string{
		"zero.pbtxt":      `item { name: "dog" id: 0 }`,
		"noname.pbtxt":    `item { id: 1 }`,
		"duplicate.pbtxt": `item { name: "dog" id: 1 } item { name: "cat" id: 1 }`,
		"garbage.pbtxt":   `this is not a label map`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(text), 0644))
		_, err := ReadLabelMap(path)
		assert.Error(t, err, strings.TrimSuffix(name, ".pbtxt"))
	}
}

func TestLoadTFRecordClasses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	batch := BuildClassMap(testSets())

	fresh, err := LoadTFRecordClasses(filepath.Join(dir, "missing.pbtxt"), batch)
	require.NoError(t, err)
	assert.Equal(t, batch.Names(), fresh.Names())

	path := filepath.Join(dir, "label_map.pbtxt")
	require.NoError(t, os.WriteFile(path, []byte(`item { name: "hotdog" id: 2 }`), 0644))
	merged, err := LoadTFRecordClasses(path, batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"hotdog", "dog", "cat"}, merged.Names())
	id, _ := merged.ID("cat")
	assert.Equal(t, 3, id)

	require.NoError(t, os.WriteFile(path, []byte(`item { name: "hotdog" id: 2147483647 }`), 0644))
	_, err = LoadTFRecordClasses(path, batch)
	assert.Error(t, err, "new classes cannot get an id past the int32 range")
}
