package preset

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenetuner/internal/domain"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "wave.py")
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	return NewFileStore(script, WithClock(func() time.Time { return at })), dir
}

func sampleParams() map[string]domain.Value {
	return map[string]domain.Value{
		"amplitude": domain.Float(2.5),
		"whole":     domain.Float(3),
		"steps":     domain.Int(-4),
		"show_grid": domain.Bool(true),
		"title":     domain.String("Ripples \"v2\""),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	params := sampleParams()
	require.NoError(t, s.Save("My Look", params))

	got, err := s.Load("My Look")
	require.NoError(t, err)
	if diff := cmp.Diff(params, got, cmp.AllowUnexported(domain.Value{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveDocumentFormat(t *testing.T) {
	s, dir := newTestStore(t)
	require.NoError(t, s.Save("a/b c", map[string]domain.Value{"x": domain.Float(1)}))

	path := filepath.Join(dir, "wave_a_b_c.preset.json")
	assert.Equal(t, path, s.Path("a/b c"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "a/b c", raw["name"])
	assert.Equal(t, "wave.py", raw["script"])
	assert.Equal(t, "2026-05-04T10:30:00Z", raw["created"])
	assert.Contains(t, string(data), `"x": 1.0`)
}

func TestListSortedAndScoped(t *testing.T) {
	s, dir := newTestStore(t)
	for _, name := range []string{"zeta", "Alpha one", "mid"} {
		require.NoError(t, s.Save(name, map[string]domain.Value{}))
	}
	other := NewFileStore(filepath.Join(dir, "other.py"))
	require.NoError(t, other.Save("foreign", map[string]domain.Value{}))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha_one", "mid", "zeta"}, names)

	_, err = s.Load(names[0])
	assert.NoError(t, err)
}

func TestLoadAndDeleteMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodePresetNotFound, domain.ErrorCodeOf(err))

	assert.ErrorIs(t, s.Delete("ghost"), domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Save("keep", map[string]domain.Value{}))
	require.NoError(t, s.Save("drop", map[string]domain.Value{}))
	require.NoError(t, s.Delete("drop"))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, names)
}

func TestLoadMalformed(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("{not json"), 0o644))
	_, err := s.Load("bad")
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestSaveRejectsEmptyNameAndNonFinite(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Save("  ", nil), domain.ErrInvalidInput)
	err := s.Save("nan", map[string]domain.Value{"x": domain.Float(math.NaN())})
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}

func TestExportImport(t *testing.T) {
	s, dir := newTestStore(t)
	path := filepath.Join(dir, "exports", "look.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	params := sampleParams()
	require.NoError(t, s.Export(path, params))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "wave.py", raw["script"])
	assert.Equal(t, "2026-05-04T10:30:00Z", raw["exported"])

	got, err := s.Import(path)
	require.NoError(t, err)
	if diff := cmp.Diff(params, got, cmp.AllowUnexported(domain.Value{})); diff != "" {
		t.Errorf("import mismatch (-want +got):\n%s", diff)
	}
}

func TestImportErrors(t *testing.T) {
	s, dir := newTestStore(t)
	_, err := s.Import(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, domain.ErrPersistence)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"script": "wave.py"}`), 0o644))
	got, err := s.Import(empty)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWithDir(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore("/scripts/wave.py", WithDir(dir))
	assert.Equal(t, filepath.Join(dir, "wave_x.preset.json"), s.Path("x"))
}
