package trace

import (
	"fmt"
	"time"

	"github.com/roffe/goccp/pkg/ccp"
)

// Direction indicates which way a frame travelled.
type Direction uint8

const (
	// DirectionIn is a CRM received from the ECU.
	DirectionIn Direction = 0
	// DirectionOut is a CRO sent to the ECU.
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Event is one traced frame. Integer keys keep trace files compact.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Direction Direction `cbor:"3,keyasint"`
	BusID     uint32    `cbor:"4,keyasint"`
	Counter   uint8     `cbor:"5,keyasint"`
	Command   uint8     `cbor:"6,keyasint"`
	Data      []byte    `cbor:"7,keyasint,omitempty"`
	Error     string    `cbor:"8,keyasint,omitempty"`
}

func (e Event) String() string {
	s := fmt.Sprintf("%s %s %-3s %03X %-19s ctr=%02X % X",
		e.Timestamp.Format("15:04:05.000000"),
		e.SessionID,
		e.Direction,
		e.BusID,
		ccp.CommandName(e.Command),
		e.Counter,
		e.Data,
	)
	if e.Error != "" {
		s += " error: " + e.Error
	}
	return s
}
