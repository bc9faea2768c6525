// Command ccptrace prints CBOR trace files written by goccp -trace.
//
// Usage:
//
//	ccptrace view [flags] <file>
//	ccptrace stats [flags] <file>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/trace"
)

const usage = `ccptrace - CCP trace viewer

Usage:
  ccptrace <command> [flags] <file>

Commands:
  view     print events
  stats    count commands and errors per session
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "view":
		err = runView(args)
	case "stats":
		err = runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type filterFlags struct {
	fs        *flag.FlagSet
	session   string
	direction string
	command   string
	errors    bool
	noColor   bool
}

func newFilterFlags(name string) *filterFlags {
	f := &filterFlags{fs: flag.NewFlagSet(name, flag.ExitOnError)}
	f.fs.StringVar(&f.session, "session", "", "only events of this session id")
	f.fs.StringVar(&f.direction, "direction", "", "in or out")
	f.fs.StringVar(&f.command, "command", "", "command name, e.g. UPLOAD")
	f.fs.BoolVar(&f.errors, "errors", false, "only failed exchanges")
	f.fs.BoolVar(&f.noColor, "no-color", false, "disable colour output")
	return f
}

func (f *filterFlags) filter() (trace.Filter, error) {
	flt := trace.Filter{SessionID: f.session, ErrorsOnly: f.errors}
	switch strings.ToLower(f.direction) {
	case "":
	case "in":
		d := trace.DirectionIn
		flt.Direction = &d
	case "out":
		d := trace.DirectionOut
		flt.Direction = &d
	default:
		return flt, fmt.Errorf("bad direction %q", f.direction)
	}
	if f.command != "" {
		cmd, ok := commandByName(f.command)
		if !ok {
			return flt, fmt.Errorf("unknown command %q", f.command)
		}
		flt.Command = &cmd
	}
	return flt, nil
}

func commandByName(name string) (byte, bool) {
	name = strings.ToUpper(name)
	for c := 0; c < 0x100; c++ {
		if ccp.CommandName(byte(c)) == name {
			return byte(c), true
		}
	}
	return 0, false
}

func openFiltered(f *filterFlags, args []string) (*trace.Reader, error) {
	f.fs.Parse(args)
	if f.fs.NArg() != 1 {
		return nil, fmt.Errorf("expected one trace file")
	}
	if f.noColor {
		color.NoColor = true
	}
	flt, err := f.filter()
	if err != nil {
		return nil, err
	}
	return trace.NewFilteredReader(f.fs.Arg(0), flt)
}

func runView(args []string) error {
	f := newFilterFlags("view")
	r, err := openFiltered(f, args)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		e, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		formatEvent(os.Stdout, e)
	}
}

func runStats(args []string) error {
	f := newFilterFlags("stats")
	r, err := openFiltered(f, args)
	if err != nil {
		return err
	}
	defer r.Close()
	st := newStats()
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		st.add(e)
	}
	st.print(os.Stdout)
	return nil
}
