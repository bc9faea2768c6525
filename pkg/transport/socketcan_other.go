//go:build !linux

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/roffe/goccp/pkg/ccp"
)

// SocketCAN is only available on Linux.
type SocketCAN struct{}

func OpenSocketCAN(_ context.Context, iface string, _ uint32) (*SocketCAN, error) {
	return nil, fmt.Errorf("%w: socketcan %s: not supported on this platform", ccp.ErrTransport, iface)
}

func (t *SocketCAN) SendAndReceive(context.Context, uint32, []byte, time.Duration) ([]byte, error) {
	return nil, ccp.ErrTransport
}

func (t *SocketCAN) Close() error { return nil }
