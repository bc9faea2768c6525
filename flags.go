package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/roffe/goccp/pkg/calibration"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/config"
	"github.com/roffe/goccp/pkg/ecusim"
)

// sessionFlags are shared by every command that opens a session.
type sessionFlags struct {
	fs *flag.FlagSet

	configPath string
	sim        bool
	key        string

	adapter string
	port    string
	bitrate float64
	croID   uint64
	dtoID   uint64
	station uint64
	timeout time.Duration

	trace     string
	debug     bool
	debugFile string
}

func newSessionFlags(name string) *sessionFlags {
	f := &sessionFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	f.fs.StringVar(&f.configPath, "config", "goccp.yaml", "config file")
	f.fs.BoolVar(&f.sim, "sim", false, "use the simulated ECU")
	f.fs.StringVar(&f.key, "key", "", "6 byte unlock key as hex, used for every seed")
	f.fs.StringVar(&f.adapter, "adapter", "", "adapter name, see goccp adapters")
	f.fs.StringVar(&f.port, "port", "", "serial port or socketcan interface")
	f.fs.Float64Var(&f.bitrate, "bitrate", 0, "CAN bitrate in kbit/s")
	f.fs.Uint64Var(&f.croID, "cro", 0, "CRO identifier")
	f.fs.Uint64Var(&f.dtoID, "dto", 0, "DTO identifier")
	f.fs.Uint64Var(&f.station, "station", 0, "station address")
	f.fs.DurationVar(&f.timeout, "timeout", 0, "reply timeout")
	f.fs.StringVar(&f.trace, "trace", "", "append a CBOR trace to this file")
	f.fs.BoolVar(&f.debug, "debug", false, "dump frames to the debug file")
	f.fs.StringVar(&f.debugFile, "debug-file", "", "debug file, default debug.log")
	return f
}

// load reads the config file and applies the flags that were set.
func (f *sessionFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "adapter":
			cfg.Adapter = f.adapter
		case "port":
			cfg.Port = f.port
		case "bitrate":
			cfg.Bitrate = f.bitrate
		case "cro":
			cfg.CROID = uint32(f.croID)
		case "dto":
			cfg.DTOID = uint32(f.dtoID)
		case "station":
			cfg.Station = uint32(f.station)
		case "timeout":
			cfg.Timeout = f.timeout
		case "trace":
			cfg.Trace = f.trace
		case "debug":
			cfg.Debug = f.debug
		case "debug-file":
			cfg.DebugFile = f.debugFile
		}
	})
	if f.croID > 0xFFFFFFFF || f.dtoID > 0xFFFFFFFF {
		return nil, fmt.Errorf("%w: CAN identifier out of range", ccp.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// keyFunc picks how seeds are answered: the simulator algorithm, a fixed
// key from -key, or nothing.
func (f *sessionFlags) keyFunc() (calibration.KeyFunc, error) {
	if f.sim && f.key == "" {
		return func(_ ccp.ResourceMask, seed []byte) ([]byte, error) {
			return ecusim.KeyFor(seed), nil
		}, nil
	}
	if f.key == "" {
		return nil, nil
	}
	key, err := parseHex(f.key)
	if err != nil {
		return nil, err
	}
	if len(key) != ccp.KeyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes", ccp.ErrInvalidArgument, ccp.KeyLength)
	}
	return func(ccp.ResourceMask, []byte) ([]byte, error) {
		return key, nil
	}, nil
}

// memoryAddress narrows -ext and -addr to their wire widths, rejecting
// values that would be truncated.
func memoryAddress(ext uint, addr uint64) (byte, uint32, error) {
	if ext > 0xFF {
		return 0, 0, fmt.Errorf("%w: extension 0x%X does not fit in 8 bits", ccp.ErrInvalidArgument, ext)
	}
	if addr > 0xFFFFFFFF {
		return 0, 0, fmt.Errorf("%w: address 0x%X does not fit in 32 bits", ccp.ErrInvalidArgument, addr)
	}
	return byte(ext), uint32(addr), nil
}

// parseHex accepts "0102AB", "01 02 ab" and "01:02:ab".
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ccp.ErrInvalidArgument, err)
	}
	return b, nil
}

// parseResources turns "cal,daq,pgm" into a mask.
func parseResources(s string) (ccp.ResourceMask, error) {
	var m ccp.ResourceMask
	for _, part := range strings.Split(strings.ToLower(s), ",") {
		switch strings.TrimSpace(part) {
		case "":
		case "cal", "write":
			m.Write = true
		case "daq", "read":
			m.Read = true
		case "pgm", "flash":
			m.Flash = true
		default:
			return m, fmt.Errorf("%w: unknown resource %q", ccp.ErrInvalidArgument, part)
		}
	}
	return m, nil
}

// parseStatus turns "cal,run" into a session status.
func parseStatus(s string) (ccp.SessionStatus, error) {
	var st ccp.SessionStatus
	for _, part := range strings.Split(strings.ToLower(s), ",") {
		switch strings.TrimSpace(part) {
		case "", "none":
		case "cal":
			st.Calibration = true
		case "daq":
			st.DataAcquisition = true
		case "resume":
			st.Resume = true
		case "store":
			st.Store = true
		case "run":
			st.Run = true
		default:
			return st, fmt.Errorf("%w: unknown status flag %q", ccp.ErrInvalidArgument, part)
		}
	}
	return st, nil
}
