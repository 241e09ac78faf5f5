// Package paramstore holds the live parameter values of one script, validates
// and records every mutation for undo/redo, and keeps the script's
// PARAMETERS declaration in sync with the in-memory values.
//
// A Store is not safe for concurrent use; callers serialize access.
package paramstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"scenetuner/internal/domain"
	"scenetuner/internal/usecase/eventbus"
)

// Store owns the current values, the undo/redo history and the listeners.
type Store struct {
	path    string
	order   []string
	specs   map[string]domain.ParameterSpec
	initial map[string]domain.Value
	values  map[string]domain.Value

	undo []domain.CommandBatch
	redo []domain.CommandBatch

	bus    domain.EventBus
	logger *slog.Logger
	now    func() time.Time
}

// New seeds a store from extracted specs. path is the backing script; an
// empty path keeps the store in memory only.
func New(path string, specs []domain.ParameterSpec, opts ...Option) *Store {
	s := &Store{
		path:    path,
		specs:   make(map[string]domain.ParameterSpec, len(specs)),
		initial: make(map[string]domain.Value, len(specs)),
		values:  make(map[string]domain.Value, len(specs)),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.bus == nil {
		s.bus = eventbus.New(s.logger)
	}
	for _, spec := range specs {
		if _, dup := s.specs[spec.Name]; !dup {
			s.order = append(s.order, spec.Name)
		}
		s.specs[spec.Name] = spec
		s.initial[spec.Name] = spec.Value
		s.values[spec.Name] = spec.Value
	}
	return s
}

// Path returns the backing script path.
func (s *Store) Path() string { return s.path }

// Names returns parameter names in declaration order.
func (s *Store) Names() []string {
	return append([]string(nil), s.order...)
}

// Spec returns the declared metadata of a parameter.
func (s *Store) Spec(name string) (domain.ParameterSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Get returns the current value of a parameter.
func (s *Store) Get(name string) (domain.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// All returns a copy of every current value.
func (s *Store) All() map[string]domain.Value {
	out := make(map[string]domain.Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Modified reports whether any value differs from the one loaded from the script.
func (s *Store) Modified() bool {
	for name, v := range s.values {
		if !v.Equal(s.initial[name]) {
			return true
		}
	}
	return false
}

// Set changes one parameter. It returns false without effect when v equals
// the current value, and fails with ErrNotFound, ErrTypeMismatch or
// ErrOutOfBounds when v is rejected.
func (s *Store) Set(name string, v domain.Value) (bool, error) {
	current, ok := s.values[name]
	if !ok {
		return false, domain.NewSubSystemError("paramstore", "Store.Set", domain.ErrNotFound,
			fmt.Sprintf("parameter %q", name))
	}
	if v.Equal(current) {
		return false, nil
	}
	v, err := s.check(name, v)
	if err != nil {
		return false, domain.WrapOp("Store.Set", err)
	}

	rec := domain.ChangeRecord{Name: name, Old: current, New: v, At: s.now()}
	s.values[name] = v
	s.push(domain.CommandBatch{
		Changes:     []domain.ChangeRecord{rec},
		Description: fmt.Sprintf("set %s", name),
	})

	ctx := context.Background()
	s.patch(ctx, name, v)
	s.notifyChange(ctx, rec.Name, rec.Old, rec.New)
	s.notifyFileModified(ctx)
	return true, nil
}

// SetBatch validates every update first, then applies the ones that passed in
// order as a single undoable batch. The result maps each name to whether its
// updates passed validation; a name listed twice is true only if every entry
// for it passed.
func (s *Store) SetBatch(updates []domain.Update) map[string]bool {
	return s.applyBatch(updates, "batch update")
}

func (s *Store) applyBatch(updates []domain.Update, description string) map[string]bool {
	result := make(map[string]bool, len(updates))
	checked := make([]domain.Value, len(updates))
	passed := make([]bool, len(updates))
	for i, u := range updates {
		v, err := s.check(u.Name, u.Value)
		if prev, seen := result[u.Name]; !seen || prev {
			result[u.Name] = err == nil
		}
		if err != nil {
			s.logger.Debug("batch entry rejected", "param", u.Name, "error", err)
			continue
		}
		checked[i] = v
		passed[i] = true
	}

	ctx := context.Background()
	var changes []domain.ChangeRecord
	index := make(map[string]int)
	for i, u := range updates {
		if !passed[i] {
			continue
		}
		v := checked[i]
		current := s.values[u.Name]
		if v.Equal(current) {
			continue
		}
		s.values[u.Name] = v
		if j, ok := index[u.Name]; ok {
			changes[j].New = v
			changes[j].At = s.now()
		} else {
			index[u.Name] = len(changes)
			changes = append(changes, domain.ChangeRecord{Name: u.Name, Old: current, New: v, At: s.now()})
		}
		s.patch(ctx, u.Name, v)
		s.notifyChange(ctx, u.Name, current, v)
	}

	// A name changed and changed back inside one batch records nothing.
	kept := changes[:0]
	for _, c := range changes {
		if !c.Old.Equal(c.New) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return result
	}
	s.push(domain.CommandBatch{Changes: kept, Description: description})
	s.notifyFileModified(ctx)
	return result
}

// Reset restores one parameter to the value loaded from the script.
func (s *Store) Reset(name string) (bool, error) {
	v, ok := s.initial[name]
	if !ok {
		return false, domain.NewSubSystemError("paramstore", "Store.Reset", domain.ErrNotFound,
			fmt.Sprintf("parameter %q", name))
	}
	return s.Set(name, v)
}

// ResetAll restores every parameter to its loaded value as one batch.
func (s *Store) ResetAll() bool {
	updates := make([]domain.Update, 0, len(s.order))
	for _, name := range s.order {
		updates = append(updates, domain.Update{Name: name, Value: s.initial[name]})
	}
	before := len(s.undo)
	s.applyBatch(updates, "reset all")
	return len(s.undo) > before
}

// check validates v against the declared type and bounds of name and returns
// the value to store. Integers are widened for float parameters.
func (s *Store) check(name string, v domain.Value) (domain.Value, error) {
	spec, ok := s.specs[name]
	if !ok {
		return v, domain.NewSubSystemError("paramstore", "Store.check", domain.ErrNotFound,
			fmt.Sprintf("parameter %q", name))
	}
	if f, isNum := v.Number(); isNum && v.Kind() == domain.KindFloat && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return v, domain.NewSubSystemError("paramstore", "Store.check", domain.ErrTypeMismatch,
			fmt.Sprintf("%s: %v is not a finite number", name, f))
	}

	mismatch := func() (domain.Value, error) {
		return v, domain.NewSubSystemError("paramstore", "Store.check", domain.ErrTypeMismatch,
			fmt.Sprintf("%s expects %s, got %s", name, spec.Type, v.Kind()))
	}
	switch spec.Type {
	case domain.TypeFloat:
		switch v.Kind() {
		case domain.KindFloat:
		case domain.KindInt:
			v = domain.Float(float64(v.Int()))
		default:
			return mismatch()
		}
	case domain.TypeInt:
		if v.Kind() != domain.KindInt {
			return mismatch()
		}
	case domain.TypeBool:
		if v.Kind() != domain.KindBool {
			return mismatch()
		}
	case domain.TypeString:
		if v.Kind() != domain.KindString {
			return mismatch()
		}
	}

	if n, ok := v.Number(); ok {
		if spec.Min != nil && n < *spec.Min {
			return v, domain.NewSubSystemError("paramstore", "Store.check", domain.ErrOutOfBounds,
				fmt.Sprintf("%s: %s below minimum %s", name, v, domain.Float(*spec.Min)))
		}
		if spec.Max != nil && n > *spec.Max {
			return v, domain.NewSubSystemError("paramstore", "Store.check", domain.ErrOutOfBounds,
				fmt.Sprintf("%s: %s above maximum %s", name, v, domain.Float(*spec.Max)))
		}
	}
	return v, nil
}

// OnChange registers fn for every value change, including undo and redo.
// Listeners run synchronously in registration order. The returned func
// removes the listener.
func (s *Store) OnChange(fn func(domain.ParamChange)) func() {
	return s.bus.Subscribe(domain.EventParamChanged, func(_ context.Context, e domain.Event) {
		if c, ok := e.Payload.(domain.ParamChange); ok {
			fn(c)
		}
	})
}

// OnFileModified registers fn to run after each successful mutation with the
// backing script path.
func (s *Store) OnFileModified(fn func(path string)) func() {
	return s.bus.Subscribe(domain.EventFileModified, func(_ context.Context, e domain.Event) {
		if p, ok := e.Payload.(string); ok {
			fn(p)
		}
	})
}

func (s *Store) notifyChange(ctx context.Context, name string, old, new domain.Value) {
	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventParamChanged,
		Timestamp: s.now(),
		Payload:   domain.ParamChange{Name: name, Old: old, New: new},
	})
}

func (s *Store) notifyFileModified(ctx context.Context) {
	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventFileModified,
		Timestamp: s.now(),
		Payload:   s.path,
	})
}
