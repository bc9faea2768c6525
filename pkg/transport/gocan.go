package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roffe/gocan"
	"github.com/roffe/gocan/adapter"
	"github.com/roffe/goccp/pkg/ccp"
)

// GoCAN carries CCP frames over any adapter supported by gocan.
type GoCAN struct {
	c     *gocan.Client
	dtoID uint32
}

// NewGoCAN wraps an already connected client. Replies are only accepted on
// dtoID.
func NewGoCAN(c *gocan.Client, dtoID uint32) *GoCAN {
	return &GoCAN{c: c, dtoID: dtoID}
}

// OpenGoCAN creates the named adapter and connects a client to it.
func OpenGoCAN(ctx context.Context, name string, cfg *gocan.AdapterConfig, dtoID uint32) (*GoCAN, error) {
	dev, err := adapter.New(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	c, err := gocan.New(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return NewGoCAN(c, dtoID), nil
}

func (t *GoCAN) SendAndReceive(ctx context.Context, busID uint32, cro []byte, timeout time.Duration) ([]byte, error) {
	frame := gocan.NewFrame(busID, cro, gocan.ResponseRequired)
	resp, err := t.c.SendAndPoll(ctx, frame, timeout, t.dtoID)
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Data(), nil
}

func (t *GoCAN) Close() error {
	return t.c.Close()
}

// mapError folds adapter errors into the two transport failure kinds the
// session understands.
func mapError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return fmt.Errorf("%w: %w", ccp.ErrTransportTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ccp.ErrTransport, err)
	}
}
