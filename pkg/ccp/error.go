package ccp

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPayloadTooLong   = errors.New("payload too long")
	ErrBadLength        = errors.New("bad frame length")
	ErrCounterMismatch  = errors.New("counter mismatch")
	ErrUnexpectedPacket = errors.New("unexpected packet id")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransport        = errors.New("transport error")
	ErrLength           = errors.New("length error")
)

// Command return codes
const (
	ACKNOWLEDGE            = 0x00
	DAQ_PROCESSOR_OVERLOAD = 0x01
	COMMAND_PROCESSOR_BUSY = 0x10
	DAQ_PROCESSOR_BUSY     = 0x11
	INTERNAL_TIMEOUT       = 0x12
	KEY_REQUEST            = 0x18
	SESSION_STATUS_REQUEST = 0x19
	COLD_START_REQUEST     = 0x20
	CAL_DATA_INIT_REQUEST  = 0x21
	DAQ_LIST_INIT_REQUEST  = 0x22
	CODE_UPDATE_REQUEST    = 0x23
	UNKNOWN_COMMAND        = 0x30
	COMMAND_SYNTAX         = 0x31
	PARAMETER_OUT_OF_RANGE = 0x32
	ACCESS_DENIED          = 0x33
	OVERLOAD               = 0x34
	ACCESS_LOCKED          = 0x35
	RESOURCE_NOT_AVAILABLE = 0x36
)

var (
	ErrDAQProcessorOverload = &DeviceError{DAQ_PROCESSOR_OVERLOAD, "DAQ processor overload"}
	ErrCommandProcessorBusy = &DeviceError{COMMAND_PROCESSOR_BUSY, "Command processor busy"}
	ErrDAQProcessorBusy     = &DeviceError{DAQ_PROCESSOR_BUSY, "DAQ processor busy"}
	ErrInternalTimeout      = &DeviceError{INTERNAL_TIMEOUT, "Internal timeout"}
	ErrKeyRequest           = &DeviceError{KEY_REQUEST, "Key request"}
	ErrSessionStatusRequest = &DeviceError{SESSION_STATUS_REQUEST, "Session status request"}
	ErrColdStartRequest     = &DeviceError{COLD_START_REQUEST, "Cold start request"}
	ErrCalDataInitRequest   = &DeviceError{CAL_DATA_INIT_REQUEST, "Calibration data initialization request"}
	ErrDAQListInitRequest   = &DeviceError{DAQ_LIST_INIT_REQUEST, "DAQ list initialization request"}
	ErrCodeUpdateRequest    = &DeviceError{CODE_UPDATE_REQUEST, "Code update request"}
	ErrUnknownCommand       = &DeviceError{UNKNOWN_COMMAND, "Unknown command"}
	ErrCommandSyntax        = &DeviceError{COMMAND_SYNTAX, "Command syntax"}
	ErrParameterOutOfRange  = &DeviceError{PARAMETER_OUT_OF_RANGE, "Parameter(s) out of range"}
	ErrAccessDenied         = &DeviceError{ACCESS_DENIED, "Access denied"}
	ErrOverload             = &DeviceError{OVERLOAD, "Overload"}
	ErrAccessLocked         = &DeviceError{ACCESS_LOCKED, "Access locked"}
	ErrResourceNotAvailable = &DeviceError{RESOURCE_NOT_AVAILABLE, "Resource/function not available"}
)

var deviceErrors = map[byte]*DeviceError{}

func init() {
	for _, e := range []*DeviceError{
		ErrDAQProcessorOverload, ErrCommandProcessorBusy, ErrDAQProcessorBusy,
		ErrInternalTimeout, ErrKeyRequest, ErrSessionStatusRequest,
		ErrColdStartRequest, ErrCalDataInitRequest, ErrDAQListInitRequest,
		ErrCodeUpdateRequest, ErrUnknownCommand, ErrCommandSyntax,
		ErrParameterOutOfRange, ErrAccessDenied, ErrOverload,
		ErrAccessLocked, ErrResourceNotAvailable,
	} {
		deviceErrors[e.Code] = e
	}
}

// DeviceError is an error code reported by the ECU in a well formed CRM.
type DeviceError struct {
	Code byte
	Msg  string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (0x%02X)", e.Msg, e.Code)
}

// Category is the error class, 0 (warning) through 3 (fatal).
// Category 1 errors may be retried after a short wait, category 2
// errors require the ECU to be reinitialized.
func (e *DeviceError) Category() int {
	switch {
	case e.Code < 0x10:
		return 0
	case e.Code < 0x20:
		return 1
	case e.Code < 0x30:
		return 2
	default:
		return 3
	}
}

// TranslateErrorCode maps a command return code to its error, nil for
// ACKNOWLEDGE.
func TranslateErrorCode(code byte) error {
	if code == ACKNOWLEDGE {
		return nil
	}
	if e, ok := deviceErrors[code]; ok {
		return e
	}
	return &DeviceError{Code: code, Msg: "Unknown error"}
}

// CounterMismatchError is returned when a reply carries a counter other
// than the one of the CRO just sent.
type CounterMismatchError struct {
	Expected byte
	Got      byte
}

func (e *CounterMismatchError) Error() string {
	return fmt.Sprintf("counter mismatch: sent 0x%02X, reply carries 0x%02X", e.Expected, e.Got)
}

func (e *CounterMismatchError) Is(target error) bool {
	return target == ErrCounterMismatch
}
