package ccp

import "fmt"

// VerifyOutbound checks that a CRO has the fixed frame length.
func VerifyOutbound(cro []byte) error {
	if len(cro) != FrameLength {
		return fmt.Errorf("%w: CRO is %d bytes, want %d", ErrBadLength, len(cro), FrameLength)
	}
	return nil
}

// VerifyInbound checks the shape of a reply and, for command return and
// event packets, that it echoes the counter of the CRO just sent. Other
// packet ids pass through unchecked.
func VerifyInbound(crm []byte, counter byte) error {
	if len(crm) != FrameLength {
		return fmt.Errorf("%w: CRM is %d bytes, want %d", ErrBadLength, len(crm), FrameLength)
	}
	switch crm[0] {
	case PID_CRM, PID_EVENT:
		if crm[2] != counter {
			return &CounterMismatchError{Expected: counter, Got: crm[2]}
		}
	}
	return nil
}

// checkReturnCode interprets a verified reply as the answer to a command.
func checkReturnCode(crm []byte) error {
	switch crm[0] {
	case PID_CRM:
		return TranslateErrorCode(crm[1])
	case PID_EVENT:
		if err := TranslateErrorCode(crm[1]); err != nil {
			return err
		}
		return &DeviceError{Code: crm[1], Msg: "Event message"}
	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnexpectedPacket, crm[0])
	}
}
