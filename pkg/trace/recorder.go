package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roffe/goccp/pkg/ccp"
)

// Recorder turns the frames of one Session into events tagged with a
// per-session id.
type Recorder struct {
	mu      sync.Mutex
	id      string
	sink    Sink
	busID   uint32
	lastCmd byte
	now     func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Recorder{
		id:   uuid.New().String(),
		sink: sink,
		now:  time.Now,
	}
}

func (r *Recorder) SessionID() string { return r.id }

func (r *Recorder) RecordCRO(busID uint32, counter byte, cro []byte) {
	r.mu.Lock()
	r.busID = busID
	r.lastCmd = cro[0]
	r.mu.Unlock()
	r.sink.Log(Event{
		Timestamp: r.now(),
		SessionID: r.id,
		Direction: DirectionOut,
		BusID:     busID,
		Counter:   counter,
		Command:   cro[0],
		Data:      append([]byte(nil), cro...),
	})
}

func (r *Recorder) RecordCRM(counter byte, crm []byte, err error) {
	r.mu.Lock()
	busID, cmd := r.busID, r.lastCmd
	r.mu.Unlock()
	e := Event{
		Timestamp: r.now(),
		SessionID: r.id,
		Direction: DirectionIn,
		BusID:     busID,
		Counter:   counter,
		Command:   cmd,
	}
	if crm != nil {
		e.Data = append([]byte(nil), crm...)
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.sink.Log(e)
}

var _ ccp.Recorder = (*Recorder)(nil)
