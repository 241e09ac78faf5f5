// Package console implements the interactive terminal host: a parameter
// editor beside the renderer log, driven by a fixed-interval tick that runs
// the controller's poll step.
package console

import "time"

// tickMsg fires every poll interval.
type tickMsg time.Time
