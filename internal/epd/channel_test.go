package epd_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"epd213/internal/epd"
	"epd213/internal/epd/epdtest"
)

func TestChannelFraming(t *testing.T) {
	rig := epdtest.NewRig()
	ch := epd.NewChannel(rig.Lines, rig.Transport)

	if err := ch.SendCommand(epd.CmdSetRAMYWindow); err != nil {
		t.Fatal(err)
	}
	if err := ch.SendData(0x12); err != nil {
		t.Fatal(err)
	}
	if err := ch.SendBurst([]byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}

	want := []epdtest.Window{
		{Data: false, Bytes: []byte{0x45}},
		{Data: true, Bytes: []byte{0x12}},
		{Data: true, Bytes: []byte{1, 2, 3, 4}},
	}
	if !reflect.DeepEqual(rig.Windows, want) {
		t.Errorf("windows = %+v, want %+v", rig.Windows, want)
	}
	if len(rig.Errors) != 0 {
		t.Errorf("framing errors: %v", rig.Errors)
	}
	if len(rig.Record.Ops) != 3 {
		t.Errorf("transport calls = %d, want 3", len(rig.Record.Ops))
	}
	if rig.CSPin.Read() != gpio.High {
		t.Error("select left asserted")
	}
}

func TestChannelReleasesSelectOnFailure(t *testing.T) {
	rig := epdtest.NewRig()
	ch := epd.NewChannel(rig.Lines, rig.Transport)

	rig.FailTx = 1
	err := ch.SendBurst(make([]byte, 64))
	if !errors.Is(err, rig.FailErr) {
		t.Fatalf("error = %v", err)
	}
	last := rig.Events[len(rig.Events)-1]
	if last.Line != epd.LineSelect || last.Level != gpio.High {
		t.Errorf("last event = %+v, want select released", last)
	}
}

func TestPinLinesWithoutSelect(t *testing.T) {
	rst := &gpiotest.Pin{N: "RST"}
	dc := &gpiotest.Pin{N: "DC"}
	busy := &gpiotest.Pin{N: "BUSY"}
	l := &epd.PinLines{Reset: rst, DC: dc, BusyIn: busy}

	if err := l.Set(epd.LineSelect, gpio.Low); err != nil {
		t.Errorf("Set(select) without pin = %v", err)
	}
	if err := l.Set(epd.LineDC, gpio.High); err != nil || dc.Read() != gpio.High {
		t.Errorf("Set(DC) = %v, level %v", err, dc.Read())
	}
	if err := l.Set(epd.Line(9), gpio.High); err == nil {
		t.Error("unknown line accepted")
	}
	_ = busy.Out(gpio.High)
	if l.Busy() != gpio.High {
		t.Error("busy not read through")
	}
}

// limited is a conn.Conn with a transfer size limit, like spidev.
type limited struct {
	conntest.Record
	max int
}

func (l *limited) MaxTxSize() int { return l.max }

func TestSPITransportChunks(t *testing.T) {
	c := &limited{max: 1500}
	tx := epd.NewSPITransport(c)

	buf := make([]byte, 4000)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	if err := tx.Write(buf); err != nil {
		t.Fatal(err)
	}
	var sizes []int
	var got []byte
	for _, op := range c.Ops {
		sizes = append(sizes, len(op.W))
		got = append(got, op.W...)
	}
	if !reflect.DeepEqual(sizes, []int{1500, 1500, 1000}) {
		t.Errorf("chunks = %v", sizes)
	}
	if !bytes.Equal(got, buf) {
		t.Error("chunked payload differs")
	}
}

type failing struct{ conntest.Record }

func (f *failing) Tx(w, r []byte) error { return errors.New("bus fault") }

var _ conn.Conn = (*failing)(nil)

func TestSPITransportError(t *testing.T) {
	tx := epd.NewSPITransport(&failing{})
	err := tx.Write([]byte{0x12})
	if err == nil || !strings.Contains(err.Error(), "bus fault") {
		t.Errorf("error = %v", err)
	}
}

func TestCommandTable(t *testing.T) {
	tests := []struct {
		op     epd.Opcode
		params int
	}{
		{epd.CmdDriverOutputControl, 3},
		{epd.CmdDeepSleep, 1},
		{epd.CmdDataEntryMode, 1},
		{epd.CmdSoftwareReset, 0},
		{epd.CmdActivateUpdate, 0},
		{epd.CmdUpdateControl, 1},
		{epd.CmdWriteRAM, -1},
		{epd.CmdBorderControl, 1},
		{epd.CmdSetRAMXWindow, 2},
		{epd.CmdSetRAMYWindow, 4},
		{epd.CmdSetRAMXCounter, 1},
		{epd.CmdSetRAMYCounter, 2},
	}
	for _, tt := range tests {
		n, ok := tt.op.Params()
		if !ok || n != tt.params {
			t.Errorf("%s: params = %d, %v, want %d", tt.op, n, ok, tt.params)
		}
	}
	if _, ok := epd.Opcode(0x99).Params(); ok {
		t.Error("0x99 should not be in the table")
	}
	if got := epd.CmdWriteRAM.String(); got != "WRITE_RAM(0x24)" {
		t.Errorf("String() = %q", got)
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("spi tx 1 bytes: EIO")
	err := error(&epd.Error{Kind: epd.KindTransport, Op: "Refresh", Opcode: epd.CmdActivateUpdate, Err: cause})

	if !errors.Is(err, epd.ErrTransport) || errors.Is(err, epd.ErrConfiguration) {
		t.Error("kind sentinel mismatch")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not unwrapped")
	}
	want := "epd: Refresh: transport (MASTER_ACTIVATION(0x20)): spi tx 1 bytes: EIO"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
