// Package control provides the run gate and abort flag shared between the
// queue worker and the components it drives. Both are cooperative: holders
// check them at safe points, nothing is interrupted mid-operation.
package control

import "sync/atomic"

// Gate is a pause/resume switch. The zero value is closed (paused).
type Gate struct {
	open atomic.Bool
}

// NewGate returns a gate in the given state.
func NewGate(open bool) *Gate {
	g := &Gate{}
	g.open.Store(open)
	return g
}

// Open resumes work.
func (g *Gate) Open() { g.open.Store(true) }

// Close pauses work.
func (g *Gate) Close() { g.open.Store(false) }

// IsOpen reports whether work may proceed.
func (g *Gate) IsOpen() bool { return g.open.Load() }

// Flag is a one-way abort signal. A nil *Flag is never set.
type Flag struct {
	set atomic.Bool
}

// Set raises the flag.
func (f *Flag) Set() { f.set.Store(true) }

// Reset lowers the flag.
func (f *Flag) Reset() { f.set.Store(false) }

// IsSet reports whether the flag is raised.
func (f *Flag) IsSet() bool {
	if f == nil {
		return false
	}
	return f.set.Load()
}
