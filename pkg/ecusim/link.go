package ecusim

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/goccp/pkg/ccp"
)

type request struct {
	id    uint32
	cro   []byte
	reply chan []byte
}

// Link is a virtual CAN segment between a master and one simulated ECU.
// Frames only get answered while Serve is running.
type Link struct {
	ecu *ECU
	req chan request
}

func NewLink(ecu *ECU) *Link {
	return &Link{
		ecu: ecu,
		req: make(chan request),
	}
}

func (l *Link) ECU() *ECU { return l.ecu }

// Serve answers frames until ctx is done.
func (l *Link) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-l.req:
			if resp := l.ecu.Handle(r.id, r.cro); resp != nil {
				r.reply <- resp
			}
		}
	}
}

func (l *Link) SendAndReceive(ctx context.Context, busID uint32, cro []byte, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	r := request{
		id:    busID,
		cro:   append([]byte(nil), cro...),
		reply: make(chan []byte, 1),
	}
	select {
	case l.req <- r:
	case <-timer.C:
		return nil, fmt.Errorf("%w: link not served", ccp.ErrTransportTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ccp.ErrTransport, ctx.Err())
	}

	select {
	case resp := <-r.reply:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no reply on 0x%03X within %s", ccp.ErrTransportTimeout, l.ecu.dtoID, timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ccp.ErrTransport, ctx.Err())
	}
}
