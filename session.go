package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/roffe/goccp/pkg/calibration"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/config"
	"github.com/roffe/goccp/pkg/debug"
	"github.com/roffe/goccp/pkg/ecusim"
	"github.com/roffe/goccp/pkg/trace"
	"github.com/roffe/goccp/pkg/transport"
	"golang.org/x/sync/errgroup"
)

const simImageSize = 0x10000

type sessionFunc func(ctx context.Context, s *ccp.Session) error

// withSession opens the bus (or the simulator), connects, runs fn and
// disconnects again.
func withSession(f *sessionFlags, fn sessionFunc) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.Debug {
		debug.SetFile(cfg.DebugFile)
		defer debug.Close()
	}

	if !f.sim {
		conn, err := transport.Open(ctx, cfg.Transport())
		if err != nil {
			return err
		}
		defer conn.Close()
		return runSession(ctx, cfg, conn, fn)
	}

	link := ecusim.NewLink(newSimECU(cfg))
	g, gctx := errgroup.WithContext(ctx)
	simCtx, stopSim := context.WithCancel(gctx)
	g.Go(func() error {
		return link.Serve(simCtx)
	})
	g.Go(func() error {
		defer stopSim()
		return runSession(gctx, cfg, link, fn)
	})
	return g.Wait()
}

func newSimECU(cfg *config.Config) *ecusim.ECU {
	image := make([]byte, simImageSize)
	for i := range image {
		image[i] = byte(i)
	}
	return ecusim.New(
		ecusim.WithStation(uint16(cfg.Station)),
		ecusim.WithIDs(cfg.CROID, cfg.DTOID),
		ecusim.WithRegion(0, 0, image),
		ecusim.WithProtection(ccp.NewResourceMask(false, true, true)),
	)
}

func runSession(ctx context.Context, cfg *config.Config, t ccp.Transport, fn sessionFunc) error {
	opts := []ccp.Option{
		ccp.WithTimeout(cfg.Timeout),
		ccp.WithDebug(cfg.Debug),
	}
	if cfg.Trace != "" {
		sink, err := trace.NewFileSink(cfg.Trace)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer sink.Close()
		rec := trace.NewRecorder(sink)
		log.Printf("tracing session %s to %s", rec.SessionID(), cfg.Trace)
		opts = append(opts, ccp.WithRecorder(rec))
	}

	s := ccp.NewSession(t, cfg.CROID, uint16(cfg.Station), opts...)
	if err := calibration.ConnectWithRetry(ctx, s, cfg.RetryAttempts, cfg.RetryDelay); err != nil {
		return fmt.Errorf("connect to station 0x%04X: %w", cfg.Station, err)
	}
	defer func() {
		if err := s.Disconnect(context.Background(), false); err != nil {
			log.Printf("disconnect: %v", err)
		}
	}()

	if cfg.MinVersion != "" {
		v, err := calibration.RequireVersion(ctx, s, cfg.MinVersion)
		if err != nil {
			return err
		}
		log.Printf("connected to station 0x%04X, CCP %s", cfg.Station, v)
	}
	return fn(ctx, s)
}
