package epd

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// Line names one of the driver's output signals.
type Line int

const (
	LineReset  Line = iota // active low
	LineDC                 // Low = command, High = data
	LineSelect             // chip select, active low
)

func (l Line) String() string {
	switch l {
	case LineReset:
		return "RST"
	case LineDC:
		return "DC"
	case LineSelect:
		return "CS"
	default:
		return fmt.Sprintf("Line(%d)", int(l))
	}
}

// Levels of the control lines as the controller interprets them.
const (
	commandLevel = gpio.Low
	dataLevel    = gpio.High
	selected     = gpio.Low
	released     = gpio.High
	busyLevel    = gpio.High
)

// Lines is a direct read/write view of the panel's control signals. There is
// no buffering or debouncing.
type Lines interface {
	Set(line Line, level gpio.Level) error
	// Busy returns the current level of the busy input, High while the
	// controller is executing an internal operation.
	Busy() gpio.Level
}

// PinLines implements Lines on periph.io GPIO pins.
//
// Select may be nil when chip select is driven by the SPI driver itself
// (spidev CE0/CE1); Set(LineSelect, ...) is then a no-op.
type PinLines struct {
	Reset  gpio.PinOut
	DC     gpio.PinOut
	Select gpio.PinOut
	BusyIn gpio.PinIn
}

// Set drives one output line.
func (p *PinLines) Set(line Line, level gpio.Level) error {
	var pin gpio.PinOut
	switch line {
	case LineReset:
		pin = p.Reset
	case LineDC:
		pin = p.DC
	case LineSelect:
		if p.Select == nil {
			return nil
		}
		pin = p.Select
	default:
		return fmt.Errorf("epd: unknown line %v", line)
	}
	if err := pin.Out(level); err != nil {
		return fmt.Errorf("epd: %v out %v: %w", line, level, err)
	}
	return nil
}

// Busy reads the busy input.
func (p *PinLines) Busy() gpio.Level {
	return p.BusyIn.Read()
}
