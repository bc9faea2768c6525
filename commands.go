package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/roffe/goccp/pkg/calibration"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/transport"
)

func runPorts() error {
	ports, err := transport.SerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func runAdapters() {
	for _, name := range transport.Adapters() {
		fmt.Println(name)
	}
}

func runInfo(args []string) error {
	f := newSessionFlags("info")
	f.fs.Parse(args)
	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		id, err := s.ExchangeID(ctx)
		if err != nil {
			return err
		}
		st, err := s.GetSessionStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("station:    0x%04X\n", s.Station())
		fmt.Printf("id length:  %d\n", id.Length)
		fmt.Printf("data type:  0x%02X\n", id.DataType)
		fmt.Printf("available:  %s\n", id.Available)
		fmt.Printf("protected:  %s\n", id.Protected)
		fmt.Printf("status:     %s\n", st)

		page, err := s.GetActiveCalibrationPage(ctx)
		switch {
		case err == nil:
			fmt.Printf("cal page:   %s\n", page)
		case errors.Is(err, ccp.ErrUnknownCommand):
			fmt.Println("cal page:   not supported")
		default:
			return err
		}
		return nil
	})
}

func runRead(args []string) error {
	f := newSessionFlags("read")
	ext := f.fs.Uint("ext", 0, "address extension")
	addr := f.fs.Uint64("addr", 0, "start address")
	length := f.fs.Int("len", 16, "number of bytes")
	out := f.fs.String("o", "", "write to file instead of printing a hex dump")
	f.fs.Parse(args)

	e, a, err := memoryAddress(*ext, *addr)
	if err != nil {
		return err
	}
	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		data, err := calibration.ReadMemory(ctx, s, e, a, *length, progress("read"))
		if err != nil {
			return err
		}
		if *out != "" {
			return os.WriteFile(*out, data, 0644)
		}
		fmt.Print(hex.Dump(data))
		return nil
	})
}

func runWrite(args []string) error {
	f := newSessionFlags("write")
	ext := f.fs.Uint("ext", 0, "address extension")
	addr := f.fs.Uint64("addr", 0, "start address")
	data := f.fs.String("data", "", "bytes to write as hex")
	in := f.fs.String("i", "", "read bytes to write from file")
	verify := f.fs.Bool("verify", true, "read back after writing")
	f.fs.Parse(args)

	var payload []byte
	var err error
	switch {
	case *in != "":
		payload, err = os.ReadFile(*in)
	case *data != "":
		payload, err = parseHex(*data)
	default:
		err = fmt.Errorf("%w: one of -data or -i is required", ccp.ErrInvalidArgument)
	}
	if err != nil {
		return err
	}
	e, a, err := memoryAddress(*ext, *addr)
	if err != nil {
		return err
	}
	keyFn, err := f.keyFunc()
	if err != nil {
		return err
	}

	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		if _, err := calibration.Unlock(ctx, s, ccp.ResourceMask{Write: true}, keyFn); err != nil {
			return err
		}
		if err := calibration.WriteMemory(ctx, s, e, a, payload, progress("write")); err != nil {
			return err
		}
		if *verify {
			if err := calibration.VerifyMemory(ctx, s, e, a, payload); err != nil {
				return err
			}
		}
		fmt.Printf("wrote %d bytes at %s\n", len(payload), ccp.MemoryAddress{Extension: e, Address: a})
		return nil
	})
}

func runStatus(args []string) error {
	f := newSessionFlags("status")
	set := f.fs.String("set", "", "status flags to set, e.g. cal,run")
	f.fs.Parse(args)

	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		if *set != "" {
			st, err := parseStatus(*set)
			if err != nil {
				return err
			}
			if err := s.SetSessionStatus(ctx, st); err != nil {
				return err
			}
		}
		st, err := s.GetSessionStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("status: %s (0x%02X)\n", st, st.Encode())
		return nil
	})
}

func runChecksum(args []string) error {
	f := newSessionFlags("checksum")
	ext := f.fs.Uint("ext", 0, "address extension")
	addr := f.fs.Uint64("addr", 0, "start address")
	length := f.fs.Uint64("len", 0x100, "block size")
	f.fs.Parse(args)

	e, a, err := memoryAddress(*ext, *addr)
	if err != nil {
		return err
	}
	if *length > 0xFFFFFFFF {
		return fmt.Errorf("%w: block size 0x%X does not fit in 32 bits", ccp.ErrInvalidArgument, *length)
	}
	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		if err := s.SetMTA(ctx, 0, e, a); err != nil {
			return err
		}
		sum, err := s.BuildChecksum(ctx, uint32(*length))
		if err != nil {
			return err
		}
		fmt.Printf("checksum: % X\n", sum)
		return nil
	})
}

func runConfig(args []string) error {
	f := newSessionFlags("config")
	save := f.fs.Bool("save", false, "write the result to the -config file instead of printing it")
	f.fs.Parse(args)
	return writeConfig(os.Stdout, f, *save)
}

// writeConfig resolves defaults, the config file and flags into one
// config, then prints or saves it.
func writeConfig(w io.Writer, f *sessionFlags, save bool) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	if save {
		if err := cfg.Save(f.configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(w, "saved %s\n", f.configPath)
		return nil
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func progress(op string) calibration.ProgressFunc {
	return func(done, total int) {
		if total == 0 {
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s %d/%d bytes (%d%%)", op, done, total, done*100/total)
		if done == total {
			fmt.Fprintln(os.Stderr)
		}
	}
}
