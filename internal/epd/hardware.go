package epd

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Wiring names the SPI port and GPIO pins the panel is connected to. Pin
// names are resolved through periph.io's gpioreg, e.g. "GPIO17".
type Wiring struct {
	// SPIPort is passed to spireg.Open; "" selects the first port
	// (/dev/spidev0.0 on a Raspberry Pi).
	SPIPort string
	// SPIHz is the bus clock, 4MHz if zero.
	SPIHz int64

	Reset string
	DC    string
	// CS may be empty when the SPI driver drives chip select.
	CS   string
	Busy string
}

// DefaultWiring is the Waveshare e-Paper HAT pinout on a Raspberry Pi, with
// chip select left to spidev CE0.
var DefaultWiring = Wiring{
	SPIPort: "",
	SPIHz:   4_000_000,
	Reset:   "GPIO17",
	DC:      "GPIO25",
	Busy:    "GPIO24",
}

// Hardware is an opened SPI port plus configured pins.
type Hardware struct {
	Lines     *PinLines
	Transport *SPITransport

	port spi.PortCloser
}

// Open initializes periph.io, opens the SPI port in mode 0 and configures
// the control pins. Outputs start released: reset high, DC low, CS high.
func Open(_ context.Context, w Wiring) (*Hardware, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init failed: %w", err)
	}

	port, err := spireg.Open(w.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("epd: failed to open SPI port %q: %w", w.SPIPort, err)
	}

	hz := w.SPIHz
	if hz <= 0 {
		hz = DefaultWiring.SPIHz
	}
	spiConn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: failed to connect SPI: %w", err)
	}

	fail := func(err error) (*Hardware, error) {
		_ = port.Close()
		return nil, err
	}

	lines := &PinLines{}
	if lines.Reset, err = outPin(w.Reset, gpio.High); err != nil {
		return fail(err)
	}
	if lines.DC, err = outPin(w.DC, gpio.Low); err != nil {
		return fail(err)
	}
	if w.CS != "" {
		if lines.Select, err = outPin(w.CS, released); err != nil {
			return fail(err)
		}
	}
	if lines.BusyIn, err = inPin(w.Busy); err != nil {
		return fail(err)
	}

	return &Hardware{
		Lines:     lines,
		Transport: NewSPITransport(spiConn),
		port:      port,
	}, nil
}

// Close releases the SPI port. Pins keep their last level.
func (h *Hardware) Close() error {
	return h.port.Close()
}

func outPin(name string, initial gpio.Level) (gpio.PinOut, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("epd: gpio %q not found", name)
	}
	if err := p.Out(initial); err != nil {
		return nil, fmt.Errorf("epd: gpio %s Out failed: %w", name, err)
	}
	return p, nil
}

func inPin(name string) (gpio.PinIn, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("epd: gpio %q not found", name)
	}
	if err := p.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("epd: gpio %s In failed: %w", name, err)
	}
	return p, nil
}
