//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/roffe/goccp/pkg/ccp"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// SocketCAN talks to a Linux SocketCAN interface such as can0 or vcan0.
type SocketCAN struct {
	conn  net.Conn
	tx    *socketcan.Transmitter
	dtoID uint32
}

func OpenSocketCAN(ctx context.Context, iface string, dtoID uint32) (*SocketCAN, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ccp.ErrTransport, iface, err)
	}
	return &SocketCAN{
		conn:  conn,
		tx:    socketcan.NewTransmitter(conn),
		dtoID: dtoID,
	}, nil
}

func (t *SocketCAN) SendAndReceive(ctx context.Context, busID uint32, cro []byte, timeout time.Duration) ([]byte, error) {
	if len(cro) > 8 {
		return nil, fmt.Errorf("%w: frame is %d bytes", ccp.ErrTransport, len(cro))
	}
	frame := can.Frame{
		ID:         busID,
		Length:     uint8(len(cro)),
		IsExtended: busID > 0x7FF,
	}
	copy(frame.Data[:], cro)

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %w", ccp.ErrTransport, err)
	}
	if err := t.tx.TransmitFrame(ctx, frame); err != nil {
		return nil, fmt.Errorf("%w: transmit: %w", ccp.ErrTransport, err)
	}

	rx := socketcan.NewReceiver(t.conn)
	for rx.Receive() {
		if rx.HasErrorFrame() {
			continue
		}
		f := rx.Frame()
		if f.ID != t.dtoID || f.IsRemote {
			continue
		}
		return append([]byte(nil), f.Data[:f.Length]...), nil
	}
	err := rx.Err()
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, fmt.Errorf("%w: no reply on 0x%03X within %s", ccp.ErrTransportTimeout, t.dtoID, timeout)
	}
	if err == nil {
		err = errors.New("receiver closed")
	}
	return nil, fmt.Errorf("%w: receive: %w", ccp.ErrTransport, err)
}

func (t *SocketCAN) Close() error {
	return t.conn.Close()
}
