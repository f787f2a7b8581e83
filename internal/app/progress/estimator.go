// Package progress implements the synthetic progress estimator for one
// generation run. The remote generation call reports no progress, so the
// percentage shown to the user is derived from the orchestration phase and
// elapsed time only. It is a display affordance, not a measure of real work.
package progress

import (
	"sync"
	"time"

	"github.com/ideaforge/ideaforge/internal/domain"
)

// band maps a phase to its percentage range on the display.
type band struct {
	lo, hi int
}

var phaseBands = map[domain.Phase]band{
	domain.PhaseValidating: {0, 10},
	domain.PhaseDebiting:   {10, 20},
	domain.PhaseGenerating: {20, 75},
	domain.PhaseProcessing: {75, 90},
	domain.PhaseSaving:     {90, 99},
}

// quartileLabels rotate by percentage threshold to keep the user informed.
var quartileLabels = [4]string{
	"Warming up the analysts...",
	"Crunching market signals...",
	"Drafting your results...",
	"Polishing the final details...",
}

// Sink receives progress samples. Samples stop after Stop or Finish.
type Sink func(domain.ProgressSample)

// Estimator animates a monotonically non-decreasing percentage across the
// phases of one generation run.
type Estimator struct {
	mu       sync.Mutex
	sink     Sink
	tick     time.Duration
	percent  int
	current  band
	entered  time.Time
	stopped  bool
	finished bool
	done     chan struct{}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTick overrides the animation interval (default 250ms).
func WithTick(d time.Duration) Option {
	return func(e *Estimator) { e.tick = d }
}

// New creates an estimator that delivers samples to sink. Call Stop when the
// owning dialog goes away, or Finish at the terminal transition.
func New(sink Sink, opts ...Option) *Estimator {
	e := &Estimator{
		sink: sink,
		tick: 250 * time.Millisecond,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.animate()
	return e
}

// SetPhase moves the estimator to the band for the given phase. The percent
// jumps to at least the band floor and never moves backward.
func (e *Estimator) SetPhase(phase domain.Phase) {
	b, ok := phaseBands[phase]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.finished {
		return
	}
	e.current = b
	e.entered = time.Now()
	if b.lo > e.percent {
		e.percent = b.lo
	}
	e.emitLocked()
}

// Finish pins the percentage to 100 and stops the animation. It is called
// exactly at the Success or Error transition, so the display reaches 100 at
// the terminal state regardless of wall-clock.
func (e *Estimator) Finish() {
	e.mu.Lock()
	if e.finished || e.stopped {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.percent = 100
	e.emitLocked()
	e.mu.Unlock()
	close(e.done)
}

// Stop tears down the animation without emitting further samples. Used when
// the UI detaches before completion; the underlying run is not aborted.
func (e *Estimator) Stop() {
	e.mu.Lock()
	if e.finished || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	close(e.done)
}

// Percent returns the current displayed percentage.
func (e *Estimator) Percent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percent
}

// animate advances the percentage within the current band on each tick. The
// step shrinks as the band top approaches, so the bar creeps but never
// crosses the band before the orchestrator reports the next phase.
func (e *Estimator) animate() {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.step()
		}
	}
}

func (e *Estimator) step() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || e.finished || e.current.hi == 0 {
		return
	}
	remaining := e.current.hi - e.percent
	if remaining <= 0 {
		return
	}
	// Approach the band top asymptotically: a quarter of the gap per tick,
	// at least one point while room remains.
	step := remaining / 4
	if step < 1 {
		step = 1
	}
	e.percent += step
	if e.percent > e.current.hi {
		e.percent = e.current.hi
	}
	e.emitLocked()
}

// emitLocked delivers a sample. Caller holds e.mu.
func (e *Estimator) emitLocked() {
	if e.sink == nil {
		return
	}
	e.sink(domain.ProgressSample{
		Percent:    e.percent,
		PhaseLabel: labelFor(e.percent),
	})
}

// labelFor picks the rotating status label for a percentage.
func labelFor(percent int) string {
	switch {
	case percent < 25:
		return quartileLabels[0]
	case percent < 50:
		return quartileLabels[1]
	case percent < 75:
		return quartileLabels[2]
	default:
		return quartileLabels[3]
	}
}
