package epd

import "fmt"

// Opcode is a controller command byte.
type Opcode byte

// Controller command set used by this driver.
const (
	CmdDriverOutputControl Opcode = 0x01
	CmdDeepSleep           Opcode = 0x10
	CmdDataEntryMode       Opcode = 0x11
	CmdSoftwareReset       Opcode = 0x12
	CmdActivateUpdate      Opcode = 0x20
	CmdUpdateControl       Opcode = 0x22
	CmdWriteRAM            Opcode = 0x24
	CmdBorderControl       Opcode = 0x3C
	CmdSetRAMXWindow       Opcode = 0x44
	CmdSetRAMYWindow       Opcode = 0x45
	CmdSetRAMXCounter      Opcode = 0x4E
	CmdSetRAMYCounter      Opcode = 0x4F
)

// Fixed parameter values.
const (
	// UpdateProfileStandard enables clock and analog, loads temperature,
	// displays with mode 1, then disables analog and the oscillator.
	UpdateProfileStandard byte = 0xF7
	// DeepSleepMode1 retains RAM contents at the lowest consumption.
	DeepSleepMode1 byte = 0x01
	// DefaultEntryMode is X increment, Y increment, X-major.
	DefaultEntryMode byte = 0x03
)

// Border waveform patterns for CmdBorderControl.
const (
	BorderBlackWhiteBlack byte = 0xC0
	BorderWhiteBlackWhite byte = 0x80
	BorderBlack           byte = 0x00
	BorderWhite           byte = 0x40

	DefaultBorder = BorderBlackWhiteBlack
)

// burst marks an opcode whose payload is a data burst of any length.
const burst = -1

type commandInfo struct {
	name   string
	params int
}

var commandTable = map[Opcode]commandInfo{
	CmdDriverOutputControl: {"DRIVER_OUTPUT_CONTROL", 3},
	CmdDeepSleep:           {"DEEP_SLEEP", 1},
	CmdDataEntryMode:       {"DATA_ENTRY_MODE", 1},
	CmdSoftwareReset:       {"SW_RESET", 0},
	CmdActivateUpdate:      {"MASTER_ACTIVATION", 0},
	CmdUpdateControl:       {"DISPLAY_UPDATE_CONTROL_2", 1},
	CmdWriteRAM:            {"WRITE_RAM", burst},
	CmdBorderControl:       {"BORDER_WAVEFORM", 1},
	CmdSetRAMXWindow:       {"SET_RAM_X_WINDOW", 2},
	CmdSetRAMYWindow:       {"SET_RAM_Y_WINDOW", 4},
	CmdSetRAMXCounter:      {"SET_RAM_X_COUNTER", 1},
	CmdSetRAMYCounter:      {"SET_RAM_Y_COUNTER", 2},
}

func (o Opcode) String() string {
	if info, ok := commandTable[o]; ok {
		return fmt.Sprintf("%s(0x%02X)", info.name, byte(o))
	}
	return fmt.Sprintf("Opcode(0x%02X)", byte(o))
}

// Params returns the number of parameter bytes the opcode takes, or -1 for a
// data burst. ok is false for opcodes outside the table.
func (o Opcode) Params() (n int, ok bool) {
	info, ok := commandTable[o]
	return info.params, ok
}

// checkArity verifies a parameter list against the command table.
func checkArity(op string, state PowerState, code Opcode, params []byte) error {
	info, ok := commandTable[code]
	if !ok {
		return configError(op, state, "unknown opcode 0x%02X", byte(code))
	}
	if info.params == burst {
		return nil
	}
	if len(params) != info.params {
		return configError(op, state, "%s takes %d parameter bytes, got %d", code, info.params, len(params))
	}
	return nil
}
