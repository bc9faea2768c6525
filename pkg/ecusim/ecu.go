package ecusim

import (
	"sync"

	"github.com/roffe/goccp/pkg/ccp"
)

const (
	DefaultStation = 0x0200
	DefaultCROID   = 0x7E0
	DefaultDTOID   = 0x7E1
)

// KeyMask is XORed with the seed to form the unlock key.
var KeyMask = []byte{0x5A, 0xA5, 0x3C, 0xC3, 0x69, 0x96}

var defaultSeed = []byte{0x12, 0x34, 0x56, 0x78}

// KeyFor computes the key the simulator accepts for seed.
func KeyFor(seed []byte) []byte {
	key := make([]byte, ccp.KeyLength)
	copy(key, seed)
	for i := range key {
		key[i] ^= KeyMask[i]
	}
	return key
}

type region struct {
	base uint32
	data []byte
}

type pointer struct {
	ext  byte
	addr uint32
}

// ECU is a simulated CCP slave. It answers CROs the way a real ECU would,
// including the error codes for locked resources and bad parameters.
type ECU struct {
	mu sync.Mutex

	station   uint16
	croID     uint32
	dtoID     uint32
	available byte
	locked    byte
	protect   byte
	seed      []byte
	regions   map[byte][]*region

	connected bool
	mta       [2]pointer
	status    byte
	calPage   pointer
	pending   byte

	dropReplies int
	badCounters int
}

// Option configures an ECU.
type Option func(*ECU)

func WithStation(station uint16) Option {
	return func(e *ECU) {
		e.station = station
	}
}

// WithIDs sets the CRO identifier the ECU listens on and the DTO
// identifier it answers on.
func WithIDs(cro, dto uint32) Option {
	return func(e *ECU) {
		e.croID = cro
		e.dtoID = dto
	}
}

// WithRegion maps data at base in address extension ext.
func WithRegion(ext byte, base uint32, data []byte) Option {
	return func(e *ECU) {
		e.regions[ext] = append(e.regions[ext], &region{base: base, data: data})
	}
}

// WithProtection sets the resources that need seed/key before use.
func WithProtection(mask ccp.ResourceMask) Option {
	return func(e *ECU) {
		e.protect = mask.Encode()
		e.locked = e.protect
	}
}

func WithSeed(seed []byte) Option {
	return func(e *ECU) {
		e.seed = append([]byte(nil), seed...)
	}
}

func New(opts ...Option) *ECU {
	e := &ECU{
		station:   DefaultStation,
		croID:     DefaultCROID,
		dtoID:     DefaultDTOID,
		available: ccp.ResourceWrite | ccp.ResourceRead | ccp.ResourceFlash,
		seed:      defaultSeed,
		regions:   make(map[byte][]*region),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *ECU) CROID() uint32   { return e.croID }
func (e *ECU) DTOID() uint32   { return e.dtoID }
func (e *ECU) Station() uint16 { return e.station }

func (e *ECU) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// DropReplies makes the ECU swallow the next n commands without answering.
func (e *ECU) DropReplies(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropReplies = n
}

// CorruptCounters makes the next n replies echo a wrong counter.
func (e *ECU) CorruptCounters(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.badCounters = n
}

// Peek returns a copy of n bytes of simulated memory.
func (e *ECU) Peek(ext byte, addr uint32, n int) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.span(ext, addr, n)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// span returns the backing slice for n bytes at addr.
func (e *ECU) span(ext byte, addr uint32, n int) ([]byte, bool) {
	for _, r := range e.regions[ext] {
		if addr < r.base {
			continue
		}
		off := uint64(addr - r.base)
		if off+uint64(n) <= uint64(len(r.data)) {
			return r.data[off : off+uint64(n)], true
		}
	}
	return nil, false
}
