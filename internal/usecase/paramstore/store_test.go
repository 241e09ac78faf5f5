package paramstore

import (
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scenetuner/internal/domain"
	"scenetuner/internal/usecase/extract"
)

const waveScript = `from manimlib import *

# Physical Parameters
PARAMETERS = {
    "amplitude": {"value": 1.0, "type": float, "unit": "m", "description": "Wave height", "min": 0, "max": 10},
    "damping": {"value": 0.1, "type": float, "unit": "1/s", "description": "Decay", "min": 0.0, "max": 1.0},
    "show_grid": {"value": True, "type": bool, "unit": "", "description": "Grid", "min": None, "max": None},
    "steps": {"value": 4, "type": int, "unit": "", "description": "Steps", "min": 1, "max": 100},
    "title": {"value": "Waves", "type": str, "unit": "", "description": "Title", "min": None, "max": None},
}


class WaveScene(Scene):
    def construct(self):
        amp = PARAMETERS["amplitude"]["value"]
`

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wave.py")
	require.NoError(t, os.WriteFile(path, []byte(waveScript), 0o644))
	script, err := extract.File(path)
	require.NoError(t, err)
	return New(path, script.Specs, WithLogger(newTestLogger())), path
}

func TestSetGetAndHistory(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.Set("amplitude", domain.Float(2.5))
	require.NoError(t, err)
	assert.True(t, ok)

	v, _ := s.Get("amplitude")
	assert.Equal(t, domain.Float(2.5), v)
	require.Len(t, s.History(), 1)
	assert.Equal(t, domain.Float(1.0), s.History()[0].Changes[0].Old)
	assert.True(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.True(t, s.Modified())
}

func TestSetScenario(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Set("amplitude", domain.Float(2.5))
	require.NoError(t, err)
	require.True(t, s.Undo())

	v, _ := s.Get("amplitude")
	assert.Equal(t, domain.Float(1.0), v)
	assert.True(t, s.CanRedo())
}

func TestSetRejections(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value domain.Value
		want  error
	}{
		{"unknown", "nope", domain.Float(1), domain.ErrNotFound},
		{"bool for float", "amplitude", domain.Bool(true), domain.ErrTypeMismatch},
		{"int for bool", "show_grid", domain.Int(1), domain.ErrTypeMismatch},
		{"float for int", "steps", domain.Float(3.5), domain.ErrTypeMismatch},
		{"int for str", "title", domain.Int(3), domain.ErrTypeMismatch},
		{"nan", "amplitude", domain.Float(math.NaN()), domain.ErrTypeMismatch},
		{"inf", "amplitude", domain.Float(math.Inf(1)), domain.ErrTypeMismatch},
		{"above max", "amplitude", domain.Float(10.5), domain.ErrOutOfBounds},
		{"below min", "steps", domain.Int(0), domain.ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, path := newTestStore(t)
			ok, err := s.Set(tt.param, tt.value)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsValidationError(err))
			assert.False(t, s.CanUndo())

			data, readErr := os.ReadFile(path)
			require.NoError(t, readErr)
			assert.Equal(t, waveScript, string(data))
		})
	}
}

func TestSetNoOp(t *testing.T) {
	s, _ := newTestStore(t)
	calls := 0
	s.OnChange(func(domain.ParamChange) { calls++ })

	ok, err := s.Set("amplitude", domain.Int(1))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.CanUndo())
	assert.Zero(t, calls)
}

func TestSetWidensIntForFloat(t *testing.T) {
	s, path := newTestStore(t)
	ok, err := s.Set("amplitude", domain.Int(3))
	require.NoError(t, err)
	require.True(t, ok)

	v, _ := s.Get("amplitude")
	assert.Equal(t, domain.Float(3), v)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amplitude": {"value": 3.0, "type": float`)
}

func TestSetClearsRedo(t *testing.T) {
	s, _ := newTestStore(t)
	_, _ = s.Set("amplitude", domain.Float(2))
	require.True(t, s.Undo())
	require.True(t, s.CanRedo())

	_, err := s.Set("damping", domain.Float(0.5))
	require.NoError(t, err)
	assert.False(t, s.CanRedo())
	assert.False(t, s.Redo())
}

func TestUndoRedoConverges(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Set("steps", domain.Int(9))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, s.Undo())
		v, _ := s.Get("steps")
		assert.Equal(t, domain.Int(4), v)
		assert.False(t, s.Undo())

		require.True(t, s.Redo())
		v, _ = s.Get("steps")
		assert.Equal(t, domain.Int(9), v)
		assert.False(t, s.Redo())
	}
}

func TestSetBatchMixed(t *testing.T) {
	s, _ := newTestStore(t)
	result := s.SetBatch([]domain.Update{
		{Name: "amplitude", Value: domain.Float(4)},
		{Name: "damping", Value: domain.Float(7)},
		{Name: "show_grid", Value: domain.Bool(false)},
		{Name: "ghost", Value: domain.Int(1)},
	})

	assert.Equal(t, map[string]bool{
		"amplitude": true, "damping": false, "show_grid": true, "ghost": false,
	}, result)
	require.Len(t, s.History(), 1)
	assert.Len(t, s.History()[0].Changes, 2)

	require.True(t, s.Undo())
	a, _ := s.Get("amplitude")
	g, _ := s.Get("show_grid")
	assert.Equal(t, domain.Float(1), a)
	assert.Equal(t, domain.Bool(true), g)
	assert.False(t, s.CanUndo())
}

func TestSetBatchNothingApplied(t *testing.T) {
	s, _ := newTestStore(t)
	result := s.SetBatch([]domain.Update{
		{Name: "damping", Value: domain.Float(7)},
		{Name: "amplitude", Value: domain.Float(1)},
	})
	assert.False(t, result["damping"])
	assert.True(t, result["amplitude"])
	assert.False(t, s.CanUndo())
}

func TestSetBatchRepeatedNameCoalesces(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetBatch([]domain.Update{
		{Name: "steps", Value: domain.Int(5)},
		{Name: "steps", Value: domain.Int(6)},
	})
	require.Len(t, s.History(), 1)
	require.Len(t, s.History()[0].Changes, 1)
	c := s.History()[0].Changes[0]
	assert.Equal(t, domain.Int(4), c.Old)
	assert.Equal(t, domain.Int(6), c.New)

	require.True(t, s.Undo())
	v, _ := s.Get("steps")
	assert.Equal(t, domain.Int(4), v)
}

func TestSetBatchRejectedEntryBeforeValid(t *testing.T) {
	s, _ := newTestStore(t)
	var seen []domain.ParamChange
	s.OnChange(func(c domain.ParamChange) { seen = append(seen, c) })

	result := s.SetBatch([]domain.Update{
		{Name: "steps", Value: domain.String("bogus")},
		{Name: "steps", Value: domain.Int(6)},
	})

	assert.False(t, result["steps"])
	v, _ := s.Get("steps")
	assert.Equal(t, domain.Int(6), v)
	require.Len(t, seen, 1)
	assert.Equal(t, domain.ParamChange{Name: "steps", Old: domain.Int(4), New: domain.Int(6)}, seen[0])
	require.Len(t, s.History(), 1)
}

func TestSetBatchRejectedEntryAfterValid(t *testing.T) {
	s, _ := newTestStore(t)
	result := s.SetBatch([]domain.Update{
		{Name: "steps", Value: domain.Int(6)},
		{Name: "steps", Value: domain.Int(999)},
	})

	assert.False(t, result["steps"])
	v, _ := s.Get("steps")
	assert.Equal(t, domain.Int(6), v)
	require.Len(t, s.History(), 1)
	assert.Equal(t, domain.Int(6), s.History()[0].Changes[0].New)
}

func TestListenersOrderAndIsolation(t *testing.T) {
	s, _ := newTestStore(t)
	var order []string
	s.OnChange(func(c domain.ParamChange) { order = append(order, "first:"+c.Name) })
	s.OnChange(func(domain.ParamChange) { panic("listener failure") })
	remove := s.OnChange(func(c domain.ParamChange) { order = append(order, "third:"+c.New.String()) })
	s.OnFileModified(func(string) { order = append(order, "file") })

	_, err := s.Set("amplitude", domain.Float(2.5))
	require.NoError(t, err)
	assert.Equal(t, []string{"first:amplitude", "third:2.5", "file"}, order)

	order = nil
	require.True(t, s.Undo())
	assert.Equal(t, []string{"first:amplitude", "third:1.0", "file"}, order)

	remove()
	order = nil
	require.True(t, s.Redo())
	assert.Equal(t, []string{"first:amplitude", "file"}, order)
}

func TestUndoNotifiesReversedDirection(t *testing.T) {
	s, _ := newTestStore(t)
	var got []domain.ParamChange
	s.OnChange(func(c domain.ParamChange) { got = append(got, c) })

	_, _ = s.Set("steps", domain.Int(7))
	s.Undo()

	require.Len(t, got, 2)
	assert.Equal(t, domain.ParamChange{Name: "steps", Old: domain.Int(7), New: domain.Int(4)}, got[1])
}

func TestResetAndResetAll(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetBatch([]domain.Update{
		{Name: "amplitude", Value: domain.Float(5)},
		{Name: "title", Value: domain.String("Ripples")},
	})

	ok, err := s.Reset("title")
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ := s.Get("title")
	assert.Equal(t, domain.String("Waves"), v)

	_, err = s.Reset("ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, s.ResetAll())
	assert.False(t, s.Modified())
	assert.False(t, s.ResetAll())
	assert.Len(t, s.History(), 3)
}

func TestClearHistory(t *testing.T) {
	s, _ := newTestStore(t)
	_, _ = s.Set("amplitude", domain.Float(2))
	_, _ = s.Set("amplitude", domain.Float(3))
	s.Undo()
	s.ClearHistory()
	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
}

func TestChangeRecordUsesClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New("", []domain.ParameterSpec{{Name: "x", Value: domain.Int(1), Type: domain.TypeInt}},
		WithClock(func() time.Time { return at }), WithLogger(newTestLogger()))

	_, err := s.Set("x", domain.Int(2))
	require.NoError(t, err)
	assert.Equal(t, at, s.History()[0].Changes[0].At)
	assert.Equal(t, []string{"x"}, s.Names())
	assert.Equal(t, "", s.Path())
}

func TestUnknownTypeAcceptsAnyKind(t *testing.T) {
	s := New("", []domain.ParameterSpec{{Name: "x", Value: domain.Int(1)}}, WithLogger(newTestLogger()))
	ok, err := s.Set("x", domain.String("anything"))
	require.NoError(t, err)
	assert.True(t, ok)
}
