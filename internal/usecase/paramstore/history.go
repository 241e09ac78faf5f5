package paramstore

import (
	"context"

	"scenetuner/internal/domain"
)

func (s *Store) push(b domain.CommandBatch) {
	s.undo = append(s.undo, b)
	s.redo = nil
}

// Undo reverts the most recent batch. It returns false when there is
// nothing to undo.
func (s *Store) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	b := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]

	ctx := context.Background()
	for _, c := range b.Changes {
		s.values[c.Name] = c.Old
		s.patch(ctx, c.Name, c.Old)
		s.notifyChange(ctx, c.Name, c.New, c.Old)
	}
	s.redo = append(s.redo, b)
	s.notifyFileModified(ctx)
	return true
}

// Redo reapplies the most recently undone batch. It returns false when
// there is nothing to redo.
func (s *Store) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	b := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]

	ctx := context.Background()
	for _, c := range b.Changes {
		s.values[c.Name] = c.New
		s.patch(ctx, c.Name, c.New)
		s.notifyChange(ctx, c.Name, c.Old, c.New)
	}
	s.undo = append(s.undo, b)
	s.notifyFileModified(ctx)
	return true
}

func (s *Store) CanUndo() bool { return len(s.undo) > 0 }
func (s *Store) CanRedo() bool { return len(s.redo) > 0 }

// History returns the undo stack, oldest batch first.
func (s *Store) History() []domain.CommandBatch {
	return append([]domain.CommandBatch(nil), s.undo...)
}

// ClearHistory drops both stacks.
func (s *Store) ClearHistory() {
	s.undo = nil
	s.redo = nil
}
