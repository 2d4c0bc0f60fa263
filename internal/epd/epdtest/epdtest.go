// Package epdtest provides a fake panel for tests: periph.io gpiotest pins
// for the control lines, a conntest.Record behind the SPI transport, and a
// manual clock that drives the busy line.
package epdtest

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"epd213/internal/epd"
)

// Clock is a manual epd.Clock. Sleep advances Now.
type Clock struct {
	T       time.Time
	Sleeps  []time.Duration
	OnSleep func(d time.Duration)
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Sleep(d time.Duration) {
	c.T = c.T.Add(d)
	c.Sleeps = append(c.Sleeps, d)
	if c.OnSleep != nil {
		c.OnSleep(d)
	}
}

// Window is one bus-select window: DC level at select time and all bytes
// written before release.
type Window struct {
	Data  bool
	Bytes []byte
}

// Event is one output line change.
type Event struct {
	Line  epd.Line
	Level gpio.Level
}

// Cmd is a command window followed by its data windows.
type Cmd struct {
	Op     epd.Opcode
	Params []byte
}

func (c Cmd) String() string {
	return fmt.Sprintf("%s % X", c.Op, c.Params)
}

// Rig is a fake panel wired to a Lines and a Transport.
type Rig struct {
	ResetPin, DCPin, CSPin, BusyPin *gpiotest.Pin

	Clock  *Clock
	Record conntest.Record

	Lines     *Lines
	Transport *epd.SPITransport

	Windows []Window
	Events  []Event
	// Errors collects protocol violations seen by the fake (writes outside a
	// select window, nested selects).
	Errors []error

	// FailTx makes the n-th transport write (1-based, counted since NewRig
	// or Forget) fail with FailErr. Zero disables.
	FailTx  int
	FailErr error

	open      *Window
	txCount   int
	busyPolls int
}

// NewRig returns an idle rig (busy low) whose clock starts at a fixed time.
func NewRig() *Rig {
	r := &Rig{
		ResetPin: &gpiotest.Pin{N: "RST"},
		DCPin:    &gpiotest.Pin{N: "DC"},
		CSPin:    &gpiotest.Pin{N: "CS"},
		BusyPin:  &gpiotest.Pin{N: "BUSY"},
		Clock:    &Clock{T: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		FailErr:  errors.New("epdtest: injected transport failure"),
	}
	_ = r.CSPin.Out(gpio.High)
	_ = r.BusyPin.Out(gpio.Low)
	r.Clock.OnSleep = r.onSleep
	r.Lines = &Lines{
		rig: r,
		pins: &epd.PinLines{
			Reset:  r.ResetPin,
			DC:     r.DCPin,
			Select: r.CSPin,
			BusyIn: r.BusyPin,
		},
	}
	r.Transport = epd.NewSPITransport(&probe{rig: r})
	return r
}

// Controller returns a controller on the rig using its clock.
func (r *Rig) Controller() *epd.Controller {
	return epd.New(r.Lines, r.Transport, &epd.Opts{Clock: r.Clock})
}

// HoldBusy raises the busy line for the next n clock sleeps; n < 0 keeps it
// raised until the next HoldBusy call.
func (r *Rig) HoldBusy(n int) {
	r.busyPolls = n
	if n == 0 {
		_ = r.BusyPin.Out(gpio.Low)
		return
	}
	_ = r.BusyPin.Out(gpio.High)
}

func (r *Rig) onSleep(time.Duration) {
	if r.busyPolls > 0 {
		r.busyPolls--
		if r.busyPolls == 0 {
			_ = r.BusyPin.Out(gpio.Low)
		}
	}
}

// Forget drops everything recorded so far.
func (r *Rig) Forget() {
	r.Windows = nil
	r.Events = nil
	r.Errors = nil
	r.Record.Ops = nil
	r.Clock.Sleeps = nil
	r.txCount = 0
	r.open = nil
}

// Commands groups the recorded windows into commands with parameters. Data
// windows before the first command are reported under opcode 0.
func (r *Rig) Commands() []Cmd {
	var out []Cmd
	for _, w := range r.Windows {
		if !w.Data {
			for _, b := range w.Bytes {
				out = append(out, Cmd{Op: epd.Opcode(b)})
			}
			continue
		}
		if len(out) == 0 {
			out = append(out, Cmd{})
		}
		last := &out[len(out)-1]
		last.Params = append(last.Params, w.Bytes...)
	}
	return out
}

// Bytes returns every byte written in order, regardless of framing.
func (r *Rig) Bytes() []byte {
	var out []byte
	for _, op := range r.Record.Ops {
		out = append(out, op.W...)
	}
	return out
}

// Lines records line changes and bus-select windows on top of epd.PinLines.
type Lines struct {
	rig  *Rig
	pins *epd.PinLines
}

func (l *Lines) Set(line epd.Line, level gpio.Level) error {
	if err := l.pins.Set(line, level); err != nil {
		return err
	}
	r := l.rig
	r.Events = append(r.Events, Event{Line: line, Level: level})
	if line != epd.LineSelect {
		return nil
	}
	if level == gpio.Low {
		if r.open != nil {
			r.Errors = append(r.Errors, errors.New("select asserted twice"))
		}
		r.open = &Window{Data: r.DCPin.Read() == gpio.High}
		return nil
	}
	if r.open != nil {
		r.Windows = append(r.Windows, *r.open)
		r.open = nil
	}
	return nil
}

func (l *Lines) Busy() gpio.Level {
	return l.pins.Busy()
}

// probe is the conn.Conn behind the rig's transport.
type probe struct {
	rig *Rig
}

func (p *probe) String() string { return "epdtest" }

func (p *probe) Duplex() conn.Duplex { return conn.Half }

func (p *probe) Tx(w, read []byte) error {
	r := p.rig
	r.txCount++
	if r.FailTx > 0 && r.txCount == r.FailTx {
		return r.FailErr
	}
	if r.open == nil || r.CSPin.Read() != gpio.Low {
		r.Errors = append(r.Errors, fmt.Errorf("write of %d bytes outside select window", len(w)))
	} else {
		r.open.Bytes = append(r.open.Bytes, w...)
	}
	return r.Record.Tx(w, read)
}
