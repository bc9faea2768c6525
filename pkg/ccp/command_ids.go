package ccp

import "fmt"

const (
	CONNECT             = 0x01
	SET_MTA             = 0x02
	DNLOAD              = 0x03
	UPLOAD              = 0x04
	TEST                = 0x05 // does not require an active connection
	START_STOP          = 0x06
	DISCONNECT          = 0x07
	START_STOP_ALL      = 0x08
	GET_ACTIVE_CAL_PAGE = 0x09
	SET_S_STATUS        = 0x0C
	GET_S_STATUS        = 0x0D
	BUILD_CHKSUM        = 0x0E
	SHORT_UP            = 0x0F
	CLEAR_MEMORY        = 0x10
	SELECT_CAL_PAGE     = 0x11
	GET_SEED            = 0x12
	UNLOCK              = 0x13
	GET_DAQ_SIZE        = 0x14
	SET_DAQ_PTR         = 0x15
	WRITE_DAQ           = 0x16
	EXCHANGE_ID         = 0x17
	PROGRAM             = 0x18
	MOVE                = 0x19
	GET_CCP_VERSION     = 0x1B
	DIAG_SERVICE        = 0x20
	ACTION_SERVICE      = 0x21
	PROGRAM_6           = 0x22
	DNLOAD_6            = 0x23
)

// Packet identifiers in byte 0 of a CRM.
const (
	PID_CRM   = 0xFF // command return message
	PID_EVENT = 0xFE // event / error message
)

const (
	FrameLength    = 8
	MaxPayload     = FrameLength - 2
	MaxBlockSize   = 5 // UPLOAD, SHORT_UP, DNLOAD, PROGRAM
	KeyLength      = 6
	DISCONNECT_TMP = 0x00
	DISCONNECT_END = 0x01
)

var commandNames = map[byte]string{
	CONNECT:             "CONNECT",
	SET_MTA:             "SET_MTA",
	DNLOAD:              "DNLOAD",
	UPLOAD:              "UPLOAD",
	TEST:                "TEST",
	START_STOP:          "START_STOP",
	DISCONNECT:          "DISCONNECT",
	START_STOP_ALL:      "START_STOP_ALL",
	GET_ACTIVE_CAL_PAGE: "GET_ACTIVE_CAL_PAGE",
	SET_S_STATUS:        "SET_S_STATUS",
	GET_S_STATUS:        "GET_S_STATUS",
	BUILD_CHKSUM:        "BUILD_CHKSUM",
	SHORT_UP:            "SHORT_UP",
	CLEAR_MEMORY:        "CLEAR_MEMORY",
	SELECT_CAL_PAGE:     "SELECT_CAL_PAGE",
	GET_SEED:            "GET_SEED",
	UNLOCK:              "UNLOCK",
	GET_DAQ_SIZE:        "GET_DAQ_SIZE",
	SET_DAQ_PTR:         "SET_DAQ_PTR",
	WRITE_DAQ:           "WRITE_DAQ",
	EXCHANGE_ID:         "EXCHANGE_ID",
	PROGRAM:             "PROGRAM",
	MOVE:                "MOVE",
	GET_CCP_VERSION:     "GET_CCP_VERSION",
	DIAG_SERVICE:        "DIAG_SERVICE",
	ACTION_SERVICE:      "ACTION_SERVICE",
	PROGRAM_6:           "PROGRAM_6",
	DNLOAD_6:            "DNLOAD_6",
}

// CommandName returns the mnemonic for a command code.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("CMD_%02X", cmd)
}
