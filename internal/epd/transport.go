package epd

import (
	"fmt"

	"periph.io/x/conn/v3"
)

// Transport writes an ordered byte sequence to the panel. Failures are
// returned as-is; retry policy belongs to the caller.
type Transport interface {
	Write(p []byte) error
}

// SPITransport implements Transport over a periph.io connection, typically
// an spi.Conn obtained from spi.Port.Connect.
type SPITransport struct {
	c conn.Conn
	// max is the largest single transfer the connection accepts, 0 when
	// unlimited.
	max int
}

// NewSPITransport wraps c. If c implements conn.Limits (spidev does, with a
// 4096 byte default), bursts are split into transfers no larger than its
// MaxTxSize.
func NewSPITransport(c conn.Conn) *SPITransport {
	t := &SPITransport{c: c}
	if l, ok := c.(conn.Limits); ok {
		t.max = l.MaxTxSize()
	}
	return t
}

// Write transmits p. The read side is discarded.
func (t *SPITransport) Write(p []byte) error {
	for len(p) > 0 {
		chunk := p
		if t.max > 0 && len(chunk) > t.max {
			chunk = chunk[:t.max]
		}
		if err := t.c.Tx(chunk, nil); err != nil {
			return fmt.Errorf("spi tx %d bytes: %w", len(chunk), err)
		}
		p = p[len(chunk):]
	}
	return nil
}

func (t *SPITransport) String() string {
	return fmt.Sprintf("SPITransport{%s}", t.c)
}
