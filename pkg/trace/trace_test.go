package trace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/ecusim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memorySink) Log(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func TestEncodeDecodeEvent(t *testing.T) {
	e := Event{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC),
		SessionID: "abc",
		Direction: DirectionOut,
		BusID:     0x7E0,
		Counter:   0x2A,
		Command:   ccp.UPLOAD,
		Data:      []byte{ccp.UPLOAD, 0x2A, 0x04, 0, 0, 0, 0, 0},
	}
	b, err := EncodeEvent(e)
	require.NoError(t, err)
	got, err := DecodeEvent(b)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	got.Timestamp = e.Timestamp
	assert.Equal(t, e, got)
}

func TestRecorder(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink)
	_, err := uuid.Parse(rec.SessionID())
	require.NoError(t, err)

	rec.RecordCRO(0x7E0, 3, []byte{ccp.GET_SEED, 3, 1, 0, 0, 0, 0, 0})
	rec.RecordCRM(3, nil, errors.New("transport timeout"))

	require.Len(t, sink.events, 2)
	out, in := sink.events[0], sink.events[1]
	assert.Equal(t, DirectionOut, out.Direction)
	assert.Equal(t, byte(ccp.GET_SEED), out.Command)
	assert.Equal(t, DirectionIn, in.Direction)
	assert.Equal(t, byte(ccp.GET_SEED), in.Command)
	assert.Equal(t, uint32(0x7E0), in.BusID)
	assert.Nil(t, in.Data)
	assert.Equal(t, "transport timeout", in.Error)
	assert.Equal(t, rec.SessionID(), in.SessionID)
}

func TestFileSinkAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link := ecusim.NewLink(ecusim.New())
	go link.Serve(ctx)

	rec := NewRecorder(sink)
	s := ccp.NewSession(link, ecusim.DefaultCROID, ecusim.DefaultStation,
		ccp.WithRecorder(rec), ccp.WithTimeout(50*time.Millisecond))
	require.NoError(t, s.Connect(ctx))
	_, err = s.GetSessionStatus(ctx)
	require.NoError(t, err)
	link.ECU().DropReplies(1)
	_, err = s.ExchangeID(ctx)
	require.Error(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	var all []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		all = append(all, e)
	}
	require.NoError(t, r.Close())
	require.Len(t, all, 6)
	assert.Equal(t, byte(ccp.CONNECT), all[0].Command)
	assert.Equal(t, DirectionIn, all[1].Direction)
	assert.Equal(t, byte(2), all[4].Counter)

	in := DirectionIn
	r, err = NewFilteredReader(path, Filter{Direction: &in, ErrorsOnly: true})
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(ccp.EXCHANGE_ID), e.Command)
	assert.Contains(t, e.Error, "transport timeout")
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestFilter(t *testing.T) {
	now := time.Now()
	cmd := byte(ccp.UPLOAD)
	out := DirectionOut
	e := Event{Timestamp: now, SessionID: "a", Direction: DirectionOut, Command: ccp.UPLOAD}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"session", Filter{SessionID: "a"}, true},
		{"other session", Filter{SessionID: "b"}, false},
		{"command", Filter{Command: &cmd, Direction: &out}, true},
		{"errors only", Filter{ErrorsOnly: true}, false},
		{"before start", Filter{TimeStart: ptr(now.Add(time.Second))}, false},
		{"at end", Filter{TimeEnd: ptr(now)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.matches(e))
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestLogSinkAndMulti(t *testing.T) {
	var buf bytes.Buffer
	mem := &memorySink{}
	sink := MultiSink{NewLogSink(log.New(&buf, "", 0)), mem, NoopSink{}}
	sink.Log(Event{SessionID: "s1", Direction: DirectionIn, BusID: 0x7E1, Command: ccp.CONNECT, Data: []byte{0xFF, 0, 0}})
	assert.Contains(t, buf.String(), "s1 IN  7E1 CONNECT")
	assert.Contains(t, buf.String(), "FF 00 00")
	assert.Len(t, mem.events, 1)
}
