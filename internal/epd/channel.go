package epd

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
)

// Channel frames command bytes, parameter bytes and data bursts on a Lines +
// Transport pair. Every call holds the bus selected for exactly one transport
// write and releases it on every exit path. It never interprets opcodes.
//
// Channel does not lock; callers sharing the bus with other devices must
// serialize access themselves.
type Channel struct {
	lines Lines
	tx    Transport
}

// NewChannel returns a Channel on the given lines and transport.
func NewChannel(lines Lines, tx Transport) *Channel {
	return &Channel{lines: lines, tx: tx}
}

// SendCommand writes one opcode with DC at command level.
func (ch *Channel) SendCommand(op Opcode) error {
	return ch.frame(commandLevel, []byte{byte(op)})
}

// SendData writes one parameter byte with DC at data level.
func (ch *Channel) SendData(b byte) error {
	return ch.frame(dataLevel, []byte{b})
}

// SendBurst writes p in a single transport call with DC at data level.
func (ch *Channel) SendBurst(p []byte) error {
	return ch.frame(dataLevel, p)
}

func (ch *Channel) frame(dc gpio.Level, p []byte) (err error) {
	if err := ch.lines.Set(LineDC, dc); err != nil {
		return err
	}
	if err := ch.lines.Set(LineSelect, selected); err != nil {
		return err
	}
	defer func() {
		if rerr := ch.lines.Set(LineSelect, released); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return ch.tx.Write(p)
}
