// Package epd drives the 2.13" 122x250 black/white e-paper panel (SSD1680
// class controller) over SPI with reset, data/command, chip select and busy
// lines.
//
// The Controller tracks the panel's power state (unknown, reset, ready, deep
// sleep) and rejects operations that the controller would silently ignore or
// misinterpret before any bus traffic is generated. A typical cycle:
//
//	c := epd.New(lines, tx, nil)
//	if err := c.Init(ctx); err != nil { ... }
//	if err := c.WriteFrame(ctx, frame); err != nil { ... }
//	_ = c.EnterDeepSleep()
package epd

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	appLog "epd213/internal/log"
)

// Opts tunes timing. The zero value of each field selects the default.
type Opts struct {
	// PollInterval is the busy line polling period (default 10ms).
	PollInterval time.Duration
	// BusyTimeout bounds every wait for the busy line to clear (default
	// 30s). A full refresh takes roughly 2-4s on this panel.
	BusyTimeout time.Duration
	// SettleDelay follows a software reset before polling (default 10ms).
	SettleDelay time.Duration
	// ResetPulse is the duration of each phase of the reset pulse (default
	// 200µs).
	ResetPulse time.Duration
	// Clock defaults to SystemClock.
	Clock Clock
}

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultBusyTimeout  = 30 * time.Second
	DefaultSettleDelay  = 10 * time.Millisecond
	DefaultResetPulse   = 200 * time.Microsecond
)

func (o *Opts) withDefaults() Opts {
	out := Opts{}
	if o != nil {
		out = *o
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.BusyTimeout <= 0 {
		out.BusyTimeout = DefaultBusyTimeout
	}
	if out.SettleDelay <= 0 {
		out.SettleDelay = DefaultSettleDelay
	}
	if out.ResetPulse <= 0 {
		out.ResetPulse = DefaultResetPulse
	}
	if out.Clock == nil {
		out.Clock = SystemClock
	}
	return out
}

// Controller is the panel lifecycle state machine. It is not safe for
// concurrent use.
type Controller struct {
	lines Lines
	ch    *Channel
	opts  Opts
	geom  Geometry
	state PowerState
}

// New returns a Controller in StateUnknown. opts may be nil.
func New(lines Lines, tx Transport, opts *Opts) *Controller {
	return &Controller{
		lines: lines,
		ch:    NewChannel(lines, tx),
		opts:  opts.withDefaults(),
		geom:  Panel213,
		state: StateUnknown,
	}
}

// State returns the current power state.
func (c *Controller) State() PowerState {
	return c.state
}

// Geometry returns the panel geometry.
func (c *Controller) Geometry() Geometry {
	return c.geom
}

func (c *Controller) String() string {
	return fmt.Sprintf("epd.Controller{%s, %s}", c.geom, c.state)
}

func (c *Controller) setState(op string, s PowerState) {
	if s != c.state {
		appLog.Debug("epd state transition", "op", op, "from", c.state, "to", s)
	}
	c.state = s
}

// Init runs the full power-on sequence: HardwareReset, SoftwareReset and
// Configure with the default entry mode.
func (c *Controller) Init(ctx context.Context) error {
	if err := c.HardwareReset(ctx); err != nil {
		return err
	}
	if err := c.SoftwareReset(ctx); err != nil {
		return err
	}
	return c.Configure(ctx, Panel213, DefaultEntryMode)
}

// HardwareReset pulses the reset line (high, low, high, ResetPulse each) and
// waits for the busy line to clear. It is legal from every state and is the
// only way out of StateUnknown and StateSleep.
func (c *Controller) HardwareReset(ctx context.Context) error {
	const op = "HardwareReset"
	for _, level := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if err := c.lines.Set(LineReset, level); err != nil {
			return c.transportError(op, 0, err)
		}
		c.opts.Clock.Sleep(c.opts.ResetPulse)
	}
	if err := c.waitIdle(ctx, op); err != nil {
		return err
	}
	c.setState(op, StateReset)
	return nil
}

// SoftwareReset sends SW_RESET, waits SettleDelay and then for the busy line
// to clear. The tracked state is left as is.
func (c *Controller) SoftwareReset(ctx context.Context) error {
	const op = "SoftwareReset"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	if err := c.exec(op, CmdSoftwareReset); err != nil {
		return err
	}
	c.opts.Clock.Sleep(c.opts.SettleDelay)
	return c.waitIdle(ctx, op)
}

// Configure programs driver output control and data entry mode, opens the
// address window over the whole panel, sets the default border and waits for
// idle. It must run exactly once after each reset and moves the controller
// to StateReady.
func (c *Controller) Configure(ctx context.Context, g Geometry, entryMode byte) error {
	const op = "Configure"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	if g != c.geom {
		return configError(op, c.state, "unsupported geometry %s, panel is %s", g, c.geom)
	}

	gates := g.Height - 1
	// Gate count low byte, MUX bit 8, then scan direction / L-R arrangement
	// (GD=0, SM=0, TB=0).
	if err := c.exec(op, CmdDriverOutputControl, byte(gates&0xFF), byte((gates>>8)&0x01), 0x00); err != nil {
		return err
	}
	if err := c.exec(op, CmdDataEntryMode, entryMode); err != nil {
		return err
	}
	if err := c.setWindow(op, 0, 0, g.Width-1, g.Height-1); err != nil {
		return err
	}
	if err := c.exec(op, CmdBorderControl, DefaultBorder); err != nil {
		return err
	}
	if err := c.waitIdle(ctx, op); err != nil {
		return err
	}
	c.setState(op, StateReady)
	return nil
}

// SetWindow restricts RAM writes to the rectangle (x0,y0)-(x1,y1), both
// corners inclusive. The controller addresses X in bytes, so the low 3 bits
// of x0 and x1 are dropped.
func (c *Controller) SetWindow(x0, y0, x1, y1 int) error {
	const op = "SetWindow"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	return c.setWindow(op, x0, y0, x1, y1)
}

func (c *Controller) setWindow(op string, x0, y0, x1, y1 int) error {
	if err := c.checkX(op, x0, x1); err != nil {
		return err
	}
	if err := c.checkY(op, y0, y1); err != nil {
		return err
	}
	if err := c.exec(op, CmdSetRAMXWindow, byte((x0>>3)&0xFF), byte((x1>>3)&0xFF)); err != nil {
		return err
	}
	return c.exec(op, CmdSetRAMYWindow, lo(y0), hi(y0), lo(y1), hi(y1))
}

// SetCursor moves the RAM address counter. The x parameter is sent as x&0xFF
// and the controller ignores its low 3 bits.
func (c *Controller) SetCursor(x, y int) error {
	const op = "SetCursor"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	return c.setCursor(op, x, y)
}

func (c *Controller) setCursor(op string, x, y int) error {
	if err := c.checkX(op, x); err != nil {
		return err
	}
	if err := c.checkY(op, y); err != nil {
		return err
	}
	if err := c.exec(op, CmdSetRAMXCounter, byte(x&0xFF)); err != nil {
		return err
	}
	return c.exec(op, CmdSetRAMYCounter, lo(y), hi(y))
}

// SetBorder selects the border waveform, e.g. BorderWhite.
func (c *Controller) SetBorder(pattern byte) error {
	const op = "SetBorder"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	return c.exec(op, CmdBorderControl, pattern)
}

// WriteFrame loads a packed frame into display RAM and refreshes the panel.
// buf must be exactly Geometry().FrameSize() bytes, MSB first, one byte per
// 8 horizontal pixels. Nothing is sent unless the controller is ready and the
// length matches.
func (c *Controller) WriteFrame(ctx context.Context, buf []byte) error {
	const op = "WriteFrame"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	if want := c.geom.FrameSize(); len(buf) != want {
		return configError(op, c.state, "frame is %d bytes, want %d", len(buf), want)
	}
	return c.writeFrame(ctx, op, buf)
}

func (c *Controller) writeFrame(ctx context.Context, op string, buf []byte) error {
	if err := c.setCursor(op, 0, 0); err != nil {
		return err
	}
	if err := c.ch.SendCommand(CmdWriteRAM); err != nil {
		return c.transportError(op, CmdWriteRAM, err)
	}
	if err := c.ch.SendBurst(buf); err != nil {
		return c.transportError(op, CmdWriteRAM, err)
	}
	appLog.Debug("epd frame written", "bytes", len(buf))
	return c.refresh(ctx, op)
}

// Refresh runs the standard full update sequence and waits for completion.
func (c *Controller) Refresh(ctx context.Context) error {
	const op = "Refresh"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	return c.refresh(ctx, op)
}

func (c *Controller) refresh(ctx context.Context, op string) error {
	if err := c.exec(op, CmdUpdateControl, UpdateProfileStandard); err != nil {
		return err
	}
	if err := c.exec(op, CmdActivateUpdate); err != nil {
		return err
	}
	return c.waitIdle(ctx, op)
}

// DefaultClearFill is the conventional "blank" fill byte. Which color it
// renders depends on the panel firmware's pixel polarity.
const DefaultClearFill byte = 0xFF

// Clear fills the whole panel with fill and refreshes.
func (c *Controller) Clear(ctx context.Context, fill byte) error {
	const op = "Clear"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	buf := make([]byte, c.geom.FrameSize())
	for i := range buf {
		buf[i] = fill
	}
	return c.writeFrame(ctx, op, buf)
}

// EnterDeepSleep puts the controller in deep sleep mode 1. The image stays on
// the panel; only HardwareReset brings the controller back.
func (c *Controller) EnterDeepSleep() error {
	const op = "EnterDeepSleep"
	if err := checkState(op, c.state); err != nil {
		return err
	}
	if err := c.exec(op, CmdDeepSleep, DeepSleepMode1); err != nil {
		return err
	}
	c.setState(op, StateSleep)
	return nil
}

// PowerOff drives reset, data/command and chip select low so the module
// draws no current. The controller state becomes unknown.
func (c *Controller) PowerOff() error {
	const op = "PowerOff"
	for _, l := range []Line{LineReset, LineDC, LineSelect} {
		if err := c.lines.Set(l, gpio.Low); err != nil {
			return c.transportError(op, 0, err)
		}
	}
	c.setState(op, StateUnknown)
	return nil
}

// exec sends an opcode followed by its parameters, one data frame each.
func (c *Controller) exec(op string, code Opcode, params ...byte) error {
	if err := checkArity(op, c.state, code, params); err != nil {
		return err
	}
	if err := c.ch.SendCommand(code); err != nil {
		return c.transportError(op, code, err)
	}
	for _, b := range params {
		if err := c.ch.SendData(b); err != nil {
			return c.transportError(op, code, err)
		}
	}
	return nil
}

// waitIdle polls the busy line until it reads idle, the timeout elapses or
// ctx is done.
func (c *Controller) waitIdle(ctx context.Context, op string) error {
	start := c.opts.Clock.Now()
	polls := 0
	for c.lines.Busy() == busyLevel {
		if err := ctx.Err(); err != nil {
			return &Error{Kind: KindHardwareTimeout, Op: op, State: c.state, Reason: "busy wait interrupted", Err: err}
		}
		if elapsed := c.opts.Clock.Now().Sub(start); elapsed >= c.opts.BusyTimeout {
			appLog.Warn("epd busy line stuck", "op", op, "elapsed", elapsed, "polls", polls)
			return &Error{
				Kind:   KindHardwareTimeout,
				Op:     op,
				State:  c.state,
				Reason: fmt.Sprintf("busy for %s (limit %s)", elapsed, c.opts.BusyTimeout),
			}
		}
		c.opts.Clock.Sleep(c.opts.PollInterval)
		polls++
	}
	if polls > 0 {
		appLog.Debug("epd idle", "op", op, "waited", c.opts.Clock.Now().Sub(start), "polls", polls)
	}
	return nil
}

func (c *Controller) transportError(op string, code Opcode, err error) error {
	return &Error{Kind: KindTransport, Op: op, State: c.state, Opcode: code, Err: err}
}

func (c *Controller) checkX(op string, xs ...int) error {
	for _, x := range xs {
		if x < 0 || x >= c.geom.Width {
			return configError(op, c.state, "x=%d outside [0,%d)", x, c.geom.Width)
		}
	}
	return nil
}

func (c *Controller) checkY(op string, ys ...int) error {
	for _, y := range ys {
		if y < 0 || y >= c.geom.Height {
			return configError(op, c.state, "y=%d outside [0,%d)", y, c.geom.Height)
		}
	}
	return nil
}

func lo(v int) byte { return byte(v & 0xFF) }
func hi(v int) byte { return byte((v >> 8) & 0xFF) }
