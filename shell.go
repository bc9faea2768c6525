package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/roffe/goccp/pkg/calibration"
	"github.com/roffe/goccp/pkg/ccp"
)

type shellCmd struct {
	usage string
	help  string
	run   func(ctx context.Context, sh *shell, args []string) error
}

type shell struct {
	s     *ccp.Session
	keyFn calibration.KeyFunc
	out   io.Writer
}

var shellCmds map[string]shellCmd

func init() {
	shellCmds = map[string]shellCmd{
		"id":        {"id", "EXCHANGE_ID", cmdID},
		"seed":      {"seed <cal|daq|pgm>", "GET_SEED", cmdSeed},
		"unlock":    {"unlock <key hex>", "UNLOCK with a raw key", cmdUnlock},
		"unlockall": {"unlockall [cal,daq,pgm]", "seed/key for each resource", cmdUnlockAll},
		"mta":       {"mta <0|1> <ext> <addr>", "SET_MTA", cmdMTA},
		"upload":    {"upload <n>", "UPLOAD n bytes from MTA0", cmdUpload},
		"shortup":   {"shortup <n> <ext> <addr>", "SHORT_UP", cmdShortUp},
		"dnload":    {"dnload <hex>", "DNLOAD up to 5 bytes", cmdTransfer((*ccp.Session).Download)},
		"dnload6":   {"dnload6 <hex>", "DNLOAD_6 exactly 6 bytes", cmdTransfer((*ccp.Session).DownloadSix)},
		"program":   {"program <hex>", "PROGRAM up to 5 bytes", cmdTransfer((*ccp.Session).Program)},
		"program6":  {"program6 <hex>", "PROGRAM_6 exactly 6 bytes", cmdTransfer((*ccp.Session).ProgramSix)},
		"clear":     {"clear <size>", "CLEAR_MEMORY from MTA0", cmdSized((*ccp.Session).ClearMemory)},
		"move":      {"move <size>", "MOVE from MTA0 to MTA1", cmdSized((*ccp.Session).Move)},
		"checksum":  {"checksum <size>", "BUILD_CHKSUM from MTA0", cmdChecksum},
		"status":    {"status [flags]", "GET_S_STATUS, or SET_S_STATUS with cal,daq,resume,store,run", cmdStatus},
		"page":      {"page", "GET_ACTIVE_CAL_PAGE", cmdPage},
		"select":    {"select", "SELECT_CAL_PAGE at MTA0", cmdSelect},
		"version":   {"version", "GET_CCP_VERSION", cmdVersion},
		"test":      {"test <station>", "TEST station presence", cmdTest},
		"read":      {"read <ext> <addr> <len>", "read a memory block", cmdRead},
		"write":     {"write <ext> <addr> <hex>", "write a memory block", cmdWrite},
		"state":     {"state", "local session state", cmdState},
	}
}

func runShell(args []string) error {
	f := newSessionFlags("shell")
	f.fs.Parse(args)
	keyFn, err := f.keyFunc()
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ccp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	log.SetOutput(rl.Stderr())

	return withSession(f, func(ctx context.Context, s *ccp.Session) error {
		sh := &shell{s: s, keyFn: keyFn, out: rl.Stdout()}
		sh.printHelp()
		for {
			if ctx.Err() != nil {
				return nil
			}
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				return nil
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			name := strings.ToLower(parts[0])
			switch name {
			case "quit", "exit", "q":
				return nil
			case "help", "?":
				sh.printHelp()
				continue
			}
			cmd, ok := shellCmds[name]
			if !ok {
				fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for commands)\n", name)
				continue
			}
			if err := cmd.run(ctx, sh, parts[1:]); err != nil {
				fmt.Fprintf(sh.out, "Error: %v\n", err)
			}
		}
	})
}

func (sh *shell) printHelp() {
	names := make([]string, 0, len(shellCmds))
	for name := range shellCmds {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(sh.out, "Commands:")
	for _, name := range names {
		c := shellCmds[name]
		fmt.Fprintf(sh.out, "  %-26s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(sh.out, "  %-26s %s\n", "quit", "disconnect and exit")
}

func want(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: expected %d arguments, got %d", ccp.ErrInvalidArgument, n, len(args))
	}
	return nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ccp.ErrInvalidArgument, err)
	}
	return v, nil
}

func cmdID(ctx context.Context, sh *shell, _ []string) error {
	id, err := sh.s.ExchangeID(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "length=%d type=0x%02X available=%s protected=%s\n", id.Length, id.DataType, id.Available, id.Protected)
	return nil
}

func cmdSeed(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 1); err != nil {
		return err
	}
	mask, err := parseResources(args[0])
	if err != nil {
		return err
	}
	seed, err := sh.s.GetSeed(ctx, mask)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "protected=%t seed=% X\n", seed.Protected, seed.Data)
	return nil
}

func cmdUnlock(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 1); err != nil {
		return err
	}
	key, err := parseHex(args[0])
	if err != nil {
		return err
	}
	mask, err := sh.s.Unlock(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "unlocked: %s\n", mask)
	return nil
}

func cmdUnlockAll(ctx context.Context, sh *shell, args []string) error {
	res := "cal,daq,pgm"
	if len(args) > 0 {
		res = args[0]
	}
	mask, err := parseResources(res)
	if err != nil {
		return err
	}
	got, err := calibration.Unlock(ctx, sh.s, mask, sh.keyFn)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "unlocked: %s\n", got)
	return nil
}

func cmdMTA(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 3); err != nil {
		return err
	}
	n, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	ext, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	addr, err := parseUint(args[2], 32)
	if err != nil {
		return err
	}
	return sh.s.SetMTA(ctx, byte(n), byte(ext), uint32(addr))
}

func cmdUpload(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 1); err != nil {
		return err
	}
	n, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	data, err := sh.s.Upload(ctx, int(n))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "% X\n", data)
	return nil
}

func cmdShortUp(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 3); err != nil {
		return err
	}
	n, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	ext, err := parseUint(args[1], 8)
	if err != nil {
		return err
	}
	addr, err := parseUint(args[2], 32)
	if err != nil {
		return err
	}
	data, err := sh.s.ShortUpload(ctx, int(n), byte(ext), uint32(addr))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "% X\n", data)
	return nil
}

func cmdTransfer(op func(*ccp.Session, context.Context, []byte) (ccp.MemoryAddress, error)) func(context.Context, *shell, []string) error {
	return func(ctx context.Context, sh *shell, args []string) error {
		if err := want(args, 1); err != nil {
			return err
		}
		data, err := parseHex(args[0])
		if err != nil {
			return err
		}
		addr, err := op(sh.s, ctx, data)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "MTA0 now %s\n", addr)
		return nil
	}
}

func cmdSized(op func(*ccp.Session, context.Context, uint32) error) func(context.Context, *shell, []string) error {
	return func(ctx context.Context, sh *shell, args []string) error {
		if err := want(args, 1); err != nil {
			return err
		}
		size, err := parseUint(args[0], 32)
		if err != nil {
			return err
		}
		return op(sh.s, ctx, uint32(size))
	}
}

func cmdChecksum(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 1); err != nil {
		return err
	}
	size, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	sum, err := sh.s.BuildChecksum(ctx, uint32(size))
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "% X\n", sum)
	return nil
}

func cmdStatus(ctx context.Context, sh *shell, args []string) error {
	if len(args) > 0 {
		st, err := parseStatus(args[0])
		if err != nil {
			return err
		}
		if err := sh.s.SetSessionStatus(ctx, st); err != nil {
			return err
		}
	}
	st, err := sh.s.GetSessionStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s (0x%02X)\n", st, st.Encode())
	return nil
}

func cmdPage(ctx context.Context, sh *shell, _ []string) error {
	page, err := sh.s.GetActiveCalibrationPage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, page)
	return nil
}

func cmdSelect(ctx context.Context, sh *shell, _ []string) error {
	return sh.s.SelectCalibrationPage(ctx)
}

func cmdVersion(ctx context.Context, sh *shell, _ []string) error {
	v, err := sh.s.GetCCPVersion(ctx, 2, 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "CCP %s\n", v)
	return nil
}

func cmdTest(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 1); err != nil {
		return err
	}
	station, err := parseUint(args[0], 16)
	if err != nil {
		return err
	}
	if err := sh.s.Test(ctx, uint16(station)); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "station 0x%04X present\n", station)
	return nil
}

func cmdRead(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 3); err != nil {
		return err
	}
	ext, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	addr, err := parseUint(args[1], 32)
	if err != nil {
		return err
	}
	n, err := parseUint(args[2], 16)
	if err != nil {
		return err
	}
	data, err := calibration.ReadMemory(ctx, sh.s, byte(ext), uint32(addr), int(n), nil)
	if err != nil {
		return err
	}
	fmt.Fprint(sh.out, hex.Dump(data))
	return nil
}

func cmdWrite(ctx context.Context, sh *shell, args []string) error {
	if err := want(args, 3); err != nil {
		return err
	}
	ext, err := parseUint(args[0], 8)
	if err != nil {
		return err
	}
	addr, err := parseUint(args[1], 32)
	if err != nil {
		return err
	}
	data, err := parseHex(args[2])
	if err != nil {
		return err
	}
	return calibration.WriteMemory(ctx, sh.s, byte(ext), uint32(addr), data, nil)
}

func cmdState(_ context.Context, sh *shell, _ []string) error {
	fmt.Fprintf(sh.out, "connected=%t counter=0x%02X", sh.s.Connected(), sh.s.Counter())
	if mta, ok := sh.s.MTA(); ok {
		fmt.Fprintf(sh.out, " mta%d=%02X:%08X", mta.Number, mta.Extension, mta.Address)
	}
	fmt.Fprintln(sh.out)
	return nil
}
