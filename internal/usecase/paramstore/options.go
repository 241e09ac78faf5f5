package paramstore

import (
	"log/slog"
	"time"

	"scenetuner/internal/domain"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for patch failures and listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for change records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBus publishes change and file-modified events on an existing bus
// instead of a private one.
func WithBus(bus domain.EventBus) Option {
	return func(s *Store) {
		if bus != nil {
			s.bus = bus
		}
	}
}
