// Package refresher runs complete panel update cycles: power up from any
// state, write one frame, and put the panel back to sleep.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"epd213/internal/epd"
	"epd213/internal/frame"
	appLog "epd213/internal/log"
)

// Source yields the frame to display for one cycle.
type Source func(ctx context.Context) (*frame.Frame, error)

// FileSource loads a packed frame from path on every call, so an external
// renderer can replace the file between cycles.
func FileSource(path string) Source {
	return func(context.Context) (*frame.Frame, error) {
		return frame.Load(path, epd.Panel213)
	}
}

// Options controls what a cycle does after configuration.
type Options struct {
	EntryMode byte
	Border    byte
	Polarity  frame.Polarity
	// SleepAfter enters deep sleep at the end of every cycle.
	SleepAfter bool
}

// Refresher owns a Controller and serializes all access to it.
type Refresher struct {
	mu   sync.Mutex
	c    *epd.Controller
	opts Options
	// suspect is set when a cycle failed; the next one starts from a
	// hardware reset even if the controller still reports ready.
	suspect bool
}

// New returns a Refresher driving c.
func New(c *epd.Controller, opts Options) *Refresher {
	return &Refresher{c: c, opts: opts}
}

// Update displays the frame returned by src.
func (r *Refresher) Update(ctx context.Context, src Source) error {
	f, err := src(ctx)
	if err != nil {
		return fmt.Errorf("refresher: frame source: %w", err)
	}
	return r.cycle(ctx, "update", func() error {
		return r.c.WriteFrame(ctx, f.Encode(r.opts.Polarity))
	})
}

// Clear fills the panel with fill.
func (r *Refresher) Clear(ctx context.Context, fill byte) error {
	return r.cycle(ctx, "clear", func() error {
		return r.c.Clear(ctx, fill)
	})
}

// Sleep puts a powered panel into deep sleep; it is a no-op when the panel
// already sleeps or was never initialized.
func (r *Refresher) Sleep() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.c.State() {
	case epd.StateReset, epd.StateReady:
		return r.c.EnterDeepSleep()
	}
	return nil
}

// State reports the controller state.
func (r *Refresher) State() epd.PowerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c.State()
}

func (r *Refresher) cycle(ctx context.Context, name string, write func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	err := r.powerUp(ctx)
	if err == nil {
		err = write()
	}
	if err == nil && r.opts.SleepAfter {
		err = r.c.EnterDeepSleep()
	}
	if err != nil {
		r.suspect = true
		return fmt.Errorf("refresher: %s: %w", name, err)
	}
	r.suspect = false
	appLog.Info("panel updated", "cycle", name, "took", time.Since(start).Round(time.Millisecond), "state", r.c.State())
	return nil
}

// powerUp brings the controller to StateReady. A ready panel is reused; any
// other state goes through the full reset and configuration sequence.
func (r *Refresher) powerUp(ctx context.Context) error {
	if r.c.State() == epd.StateReady && !r.suspect {
		return nil
	}
	if err := r.c.HardwareReset(ctx); err != nil {
		return err
	}
	if err := r.c.SoftwareReset(ctx); err != nil {
		return err
	}
	if err := r.c.Configure(ctx, epd.Panel213, r.opts.EntryMode); err != nil {
		return err
	}
	if r.opts.Border != epd.DefaultBorder {
		return r.c.SetBorder(r.opts.Border)
	}
	return nil
}

// Schedule runs Update(src) on the cron spec until ctx is done. Runs that
// would overlap a cycle still in progress are skipped.
func (r *Refresher) Schedule(ctx context.Context, spec string, src Source) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if err := r.Update(ctx, src); err != nil {
			appLog.Error("scheduled update failed", err, "schedule", spec)
		}
	})
	if err != nil {
		return fmt.Errorf("refresher: invalid schedule %q: %w", spec, err)
	}

	appLog.Info("refresh schedule started", "schedule", spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
