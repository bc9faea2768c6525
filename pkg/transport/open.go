package transport

import (
	"context"
	"io"
	"log"

	"github.com/roffe/gocan"
	"github.com/roffe/goccp/pkg/ccp"
)

// SocketCANName selects the native Linux transport instead of a gocan
// adapter.
const SocketCANName = "socketcan"

// Conn is a transport the caller has to close.
type Conn interface {
	ccp.Transport
	io.Closer
}

// Settings describes how to reach the bus.
type Settings struct {
	Adapter  string  // gocan adapter name or "socketcan"
	Port     string  // serial port, or interface name for socketcan
	Baudrate int     // serial port speed
	Bitrate  float64 // CAN bitrate in kbit/s
	DTOID    uint32  // identifier replies arrive on
	Debug    bool
}

// Open connects to the bus described by s.
func Open(ctx context.Context, s Settings) (Conn, error) {
	if s.Adapter == SocketCANName {
		return OpenSocketCAN(ctx, s.Port, s.DTOID)
	}
	return OpenGoCAN(ctx, s.Adapter, &gocan.AdapterConfig{
		Port:         s.Port,
		PortBaudrate: s.Baudrate,
		CANRate:      s.Bitrate,
		CANFilter:    []uint32{s.DTOID},
		Debug:        s.Debug,
		OnMessage: func(msg string) {
			log.Printf("adapter message: %s", msg)
		},
		OnError: func(err error) {
			log.Printf("adapter error: %v", err)
		},
	}, s.DTOID)
}
