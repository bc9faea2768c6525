package calibration

import (
	"context"
	"fmt"

	"github.com/roffe/goccp/pkg/ccp"
)

// ProgressFunc is called after every block with the bytes done so far.
type ProgressFunc func(done, total int)

// ReadMemory reads length bytes starting at ext:address using SET_MTA and
// repeated UPLOADs.
func ReadMemory(ctx context.Context, s *ccp.Session, ext byte, address uint32, length int, progress ProgressFunc) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ccp.ErrInvalidArgument, length)
	}
	if err := s.SetMTA(ctx, 0, ext, address); err != nil {
		return nil, err
	}
	buff := make([]byte, 0, length)
	for len(buff) < length {
		n := min(length-len(buff), ccp.MaxBlockSize)
		data, err := s.Upload(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("read at 0x%08X: %w", address+uint32(len(buff)), err)
		}
		buff = append(buff, data...)
		if progress != nil {
			progress(len(buff), length)
		}
	}
	return buff, nil
}

// WriteMemory writes data starting at ext:address. Full 6 byte chunks go
// out as DNLOAD_6 and the tail as DNLOAD. The MTA the ECU reports after
// every block must match where the next block is expected to land.
func WriteMemory(ctx context.Context, s *ccp.Session, ext byte, address uint32, data []byte, progress ProgressFunc) error {
	if err := s.SetMTA(ctx, 0, ext, address); err != nil {
		return err
	}
	done := 0
	for done < len(data) {
		var (
			addr ccp.MemoryAddress
			err  error
			n    int
		)
		if left := len(data) - done; left >= ccp.MaxPayload {
			n = ccp.MaxPayload
			addr, err = s.DownloadSix(ctx, data[done:done+n])
		} else {
			n = min(left, ccp.MaxBlockSize)
			addr, err = s.Download(ctx, data[done:done+n])
		}
		if err != nil {
			return fmt.Errorf("write at 0x%08X: %w", address+uint32(done), err)
		}
		done += n
		want := address + uint32(done)
		if addr.Address != want || addr.Extension != ext {
			return fmt.Errorf("ECU reports MTA %s after write, expected %02X:%08X", addr, ext, want)
		}
		if progress != nil {
			progress(done, len(data))
		}
	}
	return nil
}

// VerifyMemory reads back len(want) bytes at ext:address and compares them.
func VerifyMemory(ctx context.Context, s *ccp.Session, ext byte, address uint32, want []byte) error {
	got, err := ReadMemory(ctx, s, ext, address, len(want), nil)
	if err != nil {
		return err
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("verify failed at 0x%08X: got 0x%02X, want 0x%02X", address+uint32(i), got[i], want[i])
		}
	}
	return nil
}
