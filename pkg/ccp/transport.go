package ccp

import (
	"context"
	"time"
)

// Transport carries one CRO to the ECU and returns the next reply frame.
// Implementations report a missing reply with an error wrapping
// ErrTransportTimeout and any other failure wrapping ErrTransport.
type Transport interface {
	SendAndReceive(ctx context.Context, busID uint32, cro []byte, timeout time.Duration) ([]byte, error)
}

// Recorder observes every frame exchanged by a Session.
type Recorder interface {
	RecordCRO(busID uint32, counter byte, cro []byte)
	RecordCRM(counter byte, crm []byte, err error)
}
