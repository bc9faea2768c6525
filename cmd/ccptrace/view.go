package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/trace"
)

var (
	outColor = color.New(color.FgCyan)
	inColor  = color.New(color.FgGreen)
	errColor = color.New(color.FgRed, color.Bold)
)

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatEvent(w io.Writer, e trace.Event) {
	c := inColor
	if e.Direction == trace.DirectionOut {
		c = outColor
	}
	fmt.Fprintf(w, "%s [%s] ", e.Timestamp.Format("15:04:05.000000"), shortID(e.SessionID))
	c.Fprintf(w, "%-3s %03X %-19s ctr=%02X", e.Direction, e.BusID, ccp.CommandName(e.Command), e.Counter)
	if len(e.Data) > 0 {
		fmt.Fprintf(w, " % X", e.Data)
	}
	if e.Error != "" {
		fmt.Fprint(w, " ")
		errColor.Fprint(w, e.Error)
	}
	fmt.Fprintln(w)
}

type stats struct {
	sessions map[string]int
	commands map[byte]int
	errors   map[byte]int
}

func newStats() *stats {
	return &stats{
		sessions: make(map[string]int),
		commands: make(map[byte]int),
		errors:   make(map[byte]int),
	}
}

// add counts CROs per command and failed CRMs per command.
func (s *stats) add(e trace.Event) {
	if e.Direction == trace.DirectionOut {
		s.sessions[e.SessionID]++
		s.commands[e.Command]++
		return
	}
	if e.Error != "" {
		s.errors[e.Command]++
	}
}

func (s *stats) print(w io.Writer) {
	fmt.Fprintf(w, "sessions: %d\n", len(s.sessions))
	cmds := make([]int, 0, len(s.commands))
	for c := range s.commands {
		cmds = append(cmds, int(c))
	}
	sort.Ints(cmds)
	for _, c := range cmds {
		line := fmt.Sprintf("  %-19s %6d", ccp.CommandName(byte(c)), s.commands[byte(c)])
		if n := s.errors[byte(c)]; n > 0 {
			fmt.Fprint(w, line+" ")
			errColor.Fprintf(w, "%d failed", n)
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, line)
	}
}
