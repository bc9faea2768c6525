package ccp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply func(cro []byte) ([]byte, error)

// fakeTransport records every CRO and answers from a script, falling back
// to a plain acknowledge that echoes the counter.
type fakeTransport struct {
	sent   [][]byte
	ids    []uint32
	script []reply
}

func (f *fakeTransport) SendAndReceive(_ context.Context, busID uint32, cro []byte, _ time.Duration) ([]byte, error) {
	f.sent = append(f.sent, append([]byte(nil), cro...))
	f.ids = append(f.ids, busID)
	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		return r(cro)
	}
	return ack(cro), nil
}

func (f *fakeTransport) queue(r ...reply) { f.script = append(f.script, r...) }

func (f *fakeTransport) calls() int { return len(f.sent) }

func ack(cro []byte, data ...byte) []byte {
	out := make([]byte, 8)
	out[0] = PID_CRM
	out[2] = cro[1]
	copy(out[3:], data)
	return out
}

func ackWith(data ...byte) reply {
	return func(cro []byte) ([]byte, error) { return ack(cro, data...), nil }
}

func timeout(cro []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: no reply", ErrTransportTimeout)
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	return NewSession(ft, 0x7E0, 0x0200, opts...), ft
}

func connected(t *testing.T, opts ...Option) (*Session, *fakeTransport) {
	t.Helper()
	s, ft := newTestSession(t, opts...)
	require.NoError(t, s.Connect(context.Background()))
	ft.sent, ft.ids = nil, nil
	return s, ft
}

func TestConnectFrame(t *testing.T) {
	s, ft := newTestSession(t)
	require.False(t, s.Connected())
	require.NoError(t, s.Connect(context.Background()))
	assert.True(t, s.Connected())
	require.Len(t, ft.sent, 1)
	assert.Equal(t, []byte{CONNECT, 0x00, 0x00, 0x02, 0, 0, 0, 0}, ft.sent[0])
	assert.Equal(t, uint32(0x7E0), ft.ids[0])
	assert.Equal(t, byte(1), s.Counter())
}

func TestDisconnectFrame(t *testing.T) {
	ctx := context.Background()

	s, ft := connected(t)
	require.NoError(t, s.Disconnect(ctx, true))
	assert.False(t, s.Connected())
	assert.Equal(t, []byte{DISCONNECT, 0x01, 0x00, 0x00, 0x00, 0x02, 0, 0}, ft.sent[0])

	s, ft = connected(t)
	require.NoError(t, s.Disconnect(ctx, false))
	assert.Equal(t, []byte{DISCONNECT, 0x01, 0x01, 0x00, 0x00, 0x02, 0, 0}, ft.sent[0])
}

func TestNotConnectedPerformsNoIO(t *testing.T) {
	ctx := context.Background()
	ops := map[string]func(s *Session) error{
		"disconnect":  func(s *Session) error { return s.Disconnect(ctx, false) },
		"exchangeId":  func(s *Session) error { _, err := s.ExchangeID(ctx); return err },
		"getSeed":     func(s *Session) error { _, err := s.GetSeed(ctx, NewResourceMask(false, true, false)); return err },
		"unlock":      func(s *Session) error { _, err := s.Unlock(ctx, make([]byte, 6)); return err },
		"setMta":      func(s *Session) error { return s.SetMTA(ctx, 0, 0, 0x1000) },
		"upload":      func(s *Session) error { _, err := s.Upload(ctx, 4); return err },
		"shortUpload": func(s *Session) error { _, err := s.ShortUpload(ctx, 4, 0, 0x1000); return err },
		"download":    func(s *Session) error { _, err := s.Download(ctx, []byte{1, 2}); return err },
		"downloadSix": func(s *Session) error { _, err := s.DownloadSix(ctx, make([]byte, 6)); return err },
		"program":     func(s *Session) error { _, err := s.Program(ctx, []byte{1}); return err },
		"programSix":  func(s *Session) error { _, err := s.ProgramSix(ctx, make([]byte, 6)); return err },
		"setStatus":   func(s *Session) error { return s.SetSessionStatus(ctx, SessionStatus{Calibration: true}) },
		"getStatus":   func(s *Session) error { _, err := s.GetSessionStatus(ctx); return err },
		"selectPage":  func(s *Session) error { return s.SelectCalibrationPage(ctx) },
		"activePage":  func(s *Session) error { _, err := s.GetActiveCalibrationPage(ctx); return err },
		"version":     func(s *Session) error { _, err := s.GetCCPVersion(ctx, 2, 1); return err },
		"checksum":    func(s *Session) error { _, err := s.BuildChecksum(ctx, 0x100); return err },
		"clear":       func(s *Session) error { return s.ClearMemory(ctx, 0x100) },
		"move":        func(s *Session) error { return s.Move(ctx, 0x10) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			s, ft := newTestSession(t)
			err := op(s)
			assert.ErrorIs(t, err, ErrNotConnected)
			assert.Zero(t, ft.calls())
			assert.Equal(t, byte(0), s.Counter())
		})
	}
}

func TestTestNeedsNoConnection(t *testing.T) {
	s, ft := newTestSession(t)
	require.NoError(t, s.Test(context.Background(), 0x0033))
	assert.Equal(t, []byte{TEST, 0x00, 0x33, 0x00, 0, 0, 0, 0}, ft.sent[0])
	assert.False(t, s.Connected())
}

func TestUnlockKeyLength(t *testing.T) {
	s, ft := connected(t)
	_, err := s.Unlock(context.Background(), []byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, ft.calls())
	assert.Equal(t, byte(1), s.Counter())
}

func TestUnlock(t *testing.T) {
	s, ft := connected(t)
	ft.queue(ackWith(0x03))
	key := []byte{1, 2, 3, 4, 5, 6}
	mask, err := s.Unlock(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, NewResourceMask(true, true, false), mask)
	assert.Equal(t, append([]byte{UNLOCK, 0x01}, key...), ft.sent[0])
}

func TestCounterWraps(t *testing.T) {
	s, ft := newTestSession(t)
	ctx := context.Background()
	for i := 0; i < 256; i++ {
		require.NoError(t, s.Test(ctx, 1))
	}
	assert.Equal(t, byte(0), s.Counter())
	require.NoError(t, s.Test(ctx, 1))
	require.Len(t, ft.sent, 257)
	assert.Equal(t, byte(0xFF), ft.sent[255][1])
	assert.Equal(t, byte(0x00), ft.sent[256][1])
}

func TestCounterMismatchAdvancesCounter(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()
	ft.queue(func(cro []byte) ([]byte, error) {
		out := ack(cro)
		out[2] = cro[1] + 7
		return out, nil
	})
	_, err := s.GetSessionStatus(ctx)
	assert.ErrorIs(t, err, ErrCounterMismatch)
	assert.Equal(t, byte(2), s.Counter())

	_, err = s.GetSessionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(2), ft.sent[1][1])
}

func TestTimeoutAdvancesCounter(t *testing.T) {
	s, ft := connected(t)
	ft.queue(timeout)
	_, err := s.ExchangeID(context.Background())
	assert.ErrorIs(t, err, ErrTransportTimeout)
	assert.Equal(t, byte(2), s.Counter())
	assert.True(t, s.Connected())
}

func TestDownloadLengths(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	_, err := s.Download(ctx, make([]byte, 6))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.DownloadSix(ctx, make([]byte, 5))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Program(ctx, make([]byte, 6))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.ProgramSix(ctx, make([]byte, 7))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, ft.calls())
}

func TestDownloadUpdatesMTA(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	ft.queue(ackWith(0x01, 0x00, 0x00, 0x10, 0x03))
	addr, err := s.Download(ctx, []byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	assert.Equal(t, MemoryAddress{Extension: 1, Address: 0x1003}, addr)
	assert.Equal(t, []byte{DNLOAD, 0x01, 0x03, 0xAA, 0xBB, 0xCC, 0x00, 0x00}, ft.sent[0])

	mta, ok := s.MTA()
	require.True(t, ok)
	assert.Equal(t, MTA{Number: 0, Extension: 1, Address: 0x1003}, mta)

	six := []byte{1, 2, 3, 4, 5, 6}
	ft.queue(ackWith(0x00, 0x00, 0x00, 0x10, 0x09))
	addr, err = s.DownloadSix(ctx, six)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1009), addr.Address)
	assert.Equal(t, append([]byte{DNLOAD_6, 0x02}, six...), ft.sent[1])
}

func TestSetMTA(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetMTA(ctx, 2, 0, 0), ErrInvalidArgument)
	assert.Zero(t, ft.calls())

	_, ok := s.MTA()
	assert.False(t, ok)

	require.NoError(t, s.SetMTA(ctx, 1, 0x02, 0xDEADBEEF))
	assert.Equal(t, []byte{SET_MTA, 0x01, 0x01, 0x02, 0xDE, 0xAD, 0xBE, 0xEF}, ft.sent[0])
	mta, ok := s.MTA()
	require.True(t, ok)
	assert.Equal(t, MTA{Number: 1, Extension: 2, Address: 0xDEADBEEF}, mta)
}

func TestUpload(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, 6)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, s.SetMTA(ctx, 0, 0, 0x2000))
	ft.queue(ackWith(0x11, 0x22, 0x33, 0x44, 0x55))
	data, err := s.Upload(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, data)
	assert.Equal(t, []byte{UPLOAD, 0x02, 0x04, 0, 0, 0, 0, 0}, ft.sent[1])

	mta, _ := s.MTA()
	assert.Equal(t, uint32(0x2004), mta.Address)
}

func TestUploadLeavesMTA1(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	require.NoError(t, s.SetMTA(ctx, 0, 0, 0x1000))
	require.NoError(t, s.SetMTA(ctx, 1, 0, 0x8000))
	ft.queue(ackWith(1, 2, 3, 4))
	_, err := s.Upload(ctx, 4)
	require.NoError(t, err)

	mta, ok := s.MTA()
	require.True(t, ok)
	assert.Equal(t, MTA{Number: 1, Extension: 0, Address: 0x8000}, mta)
}

func TestPayloadTooLong(t *testing.T) {
	s, ft := connected(t)
	before := s.Counter()

	_, err := s.exchange(context.Background(), UPLOAD, make([]byte, MaxPayload+1))
	assert.ErrorIs(t, err, ErrPayloadTooLong)
	assert.Zero(t, ft.calls())
	assert.Equal(t, before, s.Counter())
}

func TestCancelledContextSendsNothing(t *testing.T) {
	s, ft := connected(t)
	before := s.Counter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetSessionStatus(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, ft.calls())
	assert.Equal(t, before, s.Counter())
}

func TestShortUpload(t *testing.T) {
	s, ft := connected(t)
	ft.queue(ackWith(0xCA, 0xFE))
	data, err := s.ShortUpload(context.Background(), 2, 0x01, 0x00400000)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, data)
	assert.Equal(t, []byte{SHORT_UP, 0x01, 0x02, 0x01, 0x00, 0x40, 0x00, 0x00}, ft.sent[0])
	_, ok := s.MTA()
	assert.False(t, ok)
}

func TestExchangeIDAndSeed(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	ft.queue(ackWith(0x04, 0x02, 0x43, 0x41))
	id, err := s.ExchangeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(4), id.Length)
	assert.Equal(t, NewResourceMask(true, true, true), id.Available)
	assert.Equal(t, NewResourceMask(false, true, true), id.Protected)

	ft.queue(ackWith(0x01, 0xDE, 0xAD, 0xBE, 0xEF))
	seed, err := s.GetSeed(ctx, NewResourceMask(false, true, false))
	require.NoError(t, err)
	assert.True(t, seed.Protected)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, seed.Data)
	assert.Equal(t, []byte{GET_SEED, 0x02, 0x01, 0, 0, 0, 0, 0}, ft.sent[1])
}

func TestSessionStatusCommands(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	require.NoError(t, s.SetSessionStatus(ctx, SessionStatus{Calibration: true, Run: true}))
	assert.Equal(t, byte(0x81), ft.sent[0][2])

	ft.queue(ackWith(0x41))
	st, err := s.GetSessionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SessionStatus{Calibration: true, Store: true}, st)
}

func TestVersionAndPages(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	ft.queue(ackWith(0x02, 0x01))
	v, err := s.GetCCPVersion(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, Version{Main: 2, Release: 1}, v)
	assert.Equal(t, "2.1", v.String())
	assert.Equal(t, []byte{GET_CCP_VERSION, 0x01, 0x02, 0x01, 0, 0, 0, 0}, ft.sent[0])

	require.NoError(t, s.SelectCalibrationPage(ctx))
	assert.Equal(t, byte(SELECT_CAL_PAGE), ft.sent[1][0])

	ft.queue(ackWith(0x00, 0x00, 0x01, 0x00, 0x00))
	page, err := s.GetActiveCalibrationPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, MemoryAddress{Address: 0x00010000}, page)
}

func TestBuildChecksum(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	ft.queue(ackWith(0x02, 0x12, 0x34))
	sum, err := s.BuildChecksum(ctx, 0x100)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, sum)
	assert.Equal(t, []byte{BUILD_CHKSUM, 0x01, 0x00, 0x00, 0x01, 0x00, 0, 0}, ft.sent[0])

	ft.queue(ackWith(0x05))
	_, err = s.BuildChecksum(ctx, 0x100)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestDeviceErrors(t *testing.T) {
	s, ft := connected(t)
	ctx := context.Background()

	ft.queue(func(cro []byte) ([]byte, error) {
		out := ack(cro)
		out[1] = ACCESS_LOCKED
		return out, nil
	})
	_, err := s.Upload(ctx, 1)
	assert.ErrorIs(t, err, ErrAccessLocked)

	ft.queue(func(cro []byte) ([]byte, error) {
		out := ack(cro)
		out[0] = PID_EVENT
		out[1] = COMMAND_PROCESSOR_BUSY
		return out, nil
	})
	err = s.SelectCalibrationPage(ctx)
	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, byte(COMMAND_PROCESSOR_BUSY), de.Code)
	assert.Equal(t, 1, de.Category())
}

func TestUnexpectedPacket(t *testing.T) {
	s, ft := connected(t)
	ft.queue(func(cro []byte) ([]byte, error) {
		out := ack(cro)
		out[0] = 0x10
		return out, nil
	})
	_, err := s.GetSessionStatus(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestBadReplyLength(t *testing.T) {
	s, ft := connected(t)
	ft.queue(func(cro []byte) ([]byte, error) { return ack(cro)[:6], nil })
	_, err := s.GetSessionStatus(context.Background())
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestConnectClearsMTA(t *testing.T) {
	s, _ := connected(t)
	ctx := context.Background()
	require.NoError(t, s.SetMTA(ctx, 0, 0, 0x100))
	require.NoError(t, s.Connect(ctx))
	_, ok := s.MTA()
	assert.False(t, ok)
}

func TestReconnectKeepsCounterAndReset(t *testing.T) {
	s, _ := connected(t)
	ctx := context.Background()
	require.NoError(t, s.Disconnect(ctx, false))
	assert.Equal(t, byte(2), s.Counter())

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, byte(3), s.Counter())
	assert.ErrorIs(t, s.Reset(), ErrInvalidArgument)

	require.NoError(t, s.Disconnect(ctx, false))
	require.NoError(t, s.Reset())
	assert.Equal(t, byte(0), s.Counter())
}

type captureRecorder struct {
	cros []byte
	crms []error
}

func (c *captureRecorder) RecordCRO(_ uint32, counter byte, _ []byte) {
	c.cros = append(c.cros, counter)
}

func (c *captureRecorder) RecordCRM(_ byte, _ []byte, err error) {
	c.crms = append(c.crms, err)
}

func TestOptions(t *testing.T) {
	rec := &captureRecorder{}
	var buf bytes.Buffer
	s, ft := newTestSession(t, WithRecorder(rec), WithLogger(log.New(&buf, "", 0)), WithTimeout(0))
	assert.Equal(t, DefaultTimeout, s.cfg.timeout)

	require.NoError(t, s.Connect(context.Background()))
	ft.queue(timeout)
	_, err := s.ExchangeID(context.Background())
	require.Error(t, err)

	assert.Equal(t, []byte{0, 1}, rec.cros)
	require.Len(t, rec.crms, 2)
	assert.NoError(t, rec.crms[0])
	assert.ErrorIs(t, rec.crms[1], ErrTransportTimeout)
	assert.Contains(t, buf.String(), "CONNECT ctr=00 ok")
	assert.Contains(t, buf.String(), "EXCHANGE_ID ctr=01")
}
