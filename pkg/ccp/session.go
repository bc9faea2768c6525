package ccp

import (
	"context"
	"fmt"
	"sync"

	"github.com/roffe/goccp/pkg/debug"
)

// MTA is the local copy of the ECU memory transfer address last set or
// reported.
type MTA struct {
	Number    byte // 0 or 1
	Extension byte
	Address   uint32
}

// MemoryAddress is an address/extension pair as reported by the ECU.
type MemoryAddress struct {
	Extension byte
	Address   uint32
}

func (m MemoryAddress) String() string {
	return fmt.Sprintf("%02X:%08X", m.Extension, m.Address)
}

// SlaveID is the reply to EXCHANGE_ID.
type SlaveID struct {
	Length    byte // length of the slave device ID in bytes
	DataType  byte
	Available ResourceMask
	Protected ResourceMask
}

// Seed is the reply to GET_SEED.
type Seed struct {
	Protected bool // false means the resource is already unlocked
	Data      []byte
}

// Version is the CCP version implemented by the ECU.
type Version struct {
	Main    byte
	Release byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Main, v.Release)
}

// Session is one master-side CCP connection to a single station. All
// operations are serialized; only one CRO is ever in flight.
type Session struct {
	mu sync.Mutex

	t       Transport
	busID   uint32
	station uint16
	cfg     config

	connected bool
	counter   byte
	mta       *MTA
}

// NewSession binds a session to a transport, the CRO identifier and the
// station address of the target ECU.
func NewSession(t Transport, busID uint32, station uint16, opts ...Option) *Session {
	if t == nil {
		panic("transport cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		t:       t,
		busID:   busID,
		station: station,
		cfg:     cfg,
	}
}

func (s *Session) Station() uint16 { return s.station }
func (s *Session) BusID() uint32   { return s.busID }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Counter returns the value the next CRO will carry.
func (s *Session) Counter() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// MTA returns the shadow memory transfer address, if one is known.
func (s *Session) MTA() (MTA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mta == nil {
		return MTA{}, false
	}
	return *s.mta, true
}

// Reset returns a disconnected session to its initial state so it can be
// connected again from counter zero.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return fmt.Errorf("%w: reset while connected", ErrInvalidArgument)
	}
	s.counter = 0
	s.mta = nil
	return nil
}

func (s *Session) buildCRO(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %s payload is %d bytes", ErrPayloadTooLong, CommandName(cmd), len(payload))
	}
	body, err := Pad(payload, MaxPayload, PadRight)
	if err != nil {
		return nil, err
	}
	return append([]byte{cmd, s.counter}, body...), nil
}

// exchange runs one CRO/CRM round trip. The counter advances as soon as the
// frame is handed to the transport, whatever the outcome, so a late reply
// to an aborted attempt can never match the next one. Frames that are never
// handed over (bad payload, context already done) leave it alone.
func (s *Session) exchange(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	cro, err := s.buildCRO(cmd, payload)
	if err != nil {
		return nil, err
	}
	if err := VerifyOutbound(cro); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), err)
	}

	counter := s.counter
	s.counter++

	if s.cfg.recorder != nil {
		s.cfg.recorder.RecordCRO(s.busID, counter, cro)
	}
	if s.cfg.debug {
		debug.Frame("CRO", s.busID, cro)
	}

	crm, err := s.roundTrip(ctx, cro, counter)

	if s.cfg.recorder != nil {
		s.cfg.recorder.RecordCRM(counter, crm, err)
	}
	if s.cfg.debug && crm != nil {
		debug.Frame("CRM", s.busID, crm)
	}
	if s.cfg.logger != nil {
		if err != nil {
			s.cfg.logger.Printf("%s ctr=%02X: %v", CommandName(cmd), counter, err)
		} else {
			s.cfg.logger.Printf("%s ctr=%02X ok", CommandName(cmd), counter)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), err)
	}
	return crm, nil
}

func (s *Session) roundTrip(ctx context.Context, cro []byte, counter byte) ([]byte, error) {
	crm, err := s.t.SendAndReceive(ctx, s.busID, cro, s.cfg.timeout)
	if err != nil {
		return nil, err
	}
	if err := VerifyInbound(crm, counter); err != nil {
		return crm, err
	}
	if err := checkReturnCode(crm); err != nil {
		return crm, err
	}
	return crm, nil
}

// command runs an exchange that requires an established connection.
func (s *Session) command(ctx context.Context, cmd byte, payload []byte) ([]byte, error) {
	if !s.connected {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), ErrNotConnected)
	}
	return s.exchange(ctx, cmd, payload)
}

// Connect logically connects to the session's station. A successful
// connect drops any shadow MTA left from an earlier connection.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.exchange(ctx, CONNECT, stationBytes(s.station)); err != nil {
		return err
	}
	s.connected = true
	s.mta = nil
	return nil
}

// Disconnect ends the session. A temporary disconnect leaves the ECU
// session state intact for a later reconnect.
func (s *Session) Disconnect(ctx context.Context, temporary bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := byte(DISCONNECT_END)
	if temporary {
		flag = DISCONNECT_TMP
	}
	payload := append([]byte{flag, 0x00}, stationBytes(s.station)...)
	if _, err := s.command(ctx, DISCONNECT, payload); err != nil {
		return err
	}
	s.connected = false
	s.mta = nil
	return nil
}

// Test checks whether a station is present. It needs no connection.
func (s *Session) Test(ctx context.Context, station uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.exchange(ctx, TEST, stationBytes(station))
	return err
}

func (s *Session) ExchangeID(ctx context.Context) (*SlaveID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, EXCHANGE_ID, nil)
	if err != nil {
		return nil, err
	}
	return &SlaveID{
		Length:    crm[3],
		DataType:  crm[4],
		Available: ResourceMaskFromByte(crm[5]),
		Protected: ResourceMaskFromByte(crm[6]),
	}, nil
}

// GetSeed requests the seed protecting the resources in mask.
func (s *Session) GetSeed(ctx context.Context, mask ResourceMask) (*Seed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, GET_SEED, []byte{mask.Encode()})
	if err != nil {
		return nil, err
	}
	return &Seed{
		Protected: crm[3] != 0,
		Data:      append([]byte(nil), crm[4:8]...),
	}, nil
}

// Unlock sends a 6 byte key and returns the resources now unlocked.
func (s *Session) Unlock(ctx context.Context, key []byte) (ResourceMask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(key) != KeyLength {
		return ResourceMask{}, fmt.Errorf("%w: key must be exactly %d bytes, got %d", ErrInvalidArgument, KeyLength, len(key))
	}
	crm, err := s.command(ctx, UNLOCK, key)
	if err != nil {
		return ResourceMask{}, err
	}
	return ResourceMaskFromByte(crm[3]), nil
}

// SetMTA sets memory transfer address 0 or 1.
func (s *Session) SetMTA(ctx context.Context, number, extension byte, address uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if number > 1 {
		return fmt.Errorf("%w: MTA number must be 0 or 1, got %d", ErrInvalidArgument, number)
	}
	payload := putAddress([]byte{number, extension}, address)
	if _, err := s.command(ctx, SET_MTA, payload); err != nil {
		return err
	}
	s.mta = &MTA{Number: number, Extension: extension, Address: address}
	return nil
}

// Upload reads size bytes from MTA0, which the ECU then post-increments.
// A shadow MTA1 is left as it was.
func (s *Session) Upload(ctx context.Context, size int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size < 0 || size > MaxBlockSize {
		return nil, fmt.Errorf("%w: upload size %d, max %d", ErrInvalidArgument, size, MaxBlockSize)
	}
	crm, err := s.command(ctx, UPLOAD, []byte{byte(size)})
	if err != nil {
		return nil, err
	}
	if s.mta != nil && s.mta.Number == 0 {
		s.mta.Address += uint32(size)
	}
	return append([]byte(nil), crm[3:3+size]...), nil
}

// ShortUpload reads up to 5 bytes from an explicit address without
// touching the MTA.
func (s *Session) ShortUpload(ctx context.Context, size int, extension byte, address uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if size < 1 || size > MaxBlockSize {
		return nil, fmt.Errorf("%w: short upload size %d, want 1-%d", ErrInvalidArgument, size, MaxBlockSize)
	}
	crm, err := s.command(ctx, SHORT_UP, putAddress([]byte{byte(size), extension}, address))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), crm[3:3+size]...), nil
}

// Download writes up to 5 bytes at MTA0.
func (s *Session) Download(ctx context.Context, data []byte) (MemoryAddress, error) {
	if len(data) > MaxBlockSize {
		return MemoryAddress{}, fmt.Errorf("%w: download takes at most %d bytes, got %d", ErrInvalidArgument, MaxBlockSize, len(data))
	}
	return s.transfer(ctx, DNLOAD, append([]byte{byte(len(data))}, data...))
}

// DownloadSix writes exactly 6 bytes at MTA0.
func (s *Session) DownloadSix(ctx context.Context, data []byte) (MemoryAddress, error) {
	if len(data) != MaxPayload {
		return MemoryAddress{}, fmt.Errorf("%w: download6 takes exactly %d bytes, got %d", ErrInvalidArgument, MaxPayload, len(data))
	}
	return s.transfer(ctx, DNLOAD_6, data)
}

// Program writes up to 5 bytes to non-volatile memory at MTA0.
func (s *Session) Program(ctx context.Context, data []byte) (MemoryAddress, error) {
	if len(data) > MaxBlockSize {
		return MemoryAddress{}, fmt.Errorf("%w: program takes at most %d bytes, got %d", ErrInvalidArgument, MaxBlockSize, len(data))
	}
	return s.transfer(ctx, PROGRAM, append([]byte{byte(len(data))}, data...))
}

// ProgramSix writes exactly 6 bytes to non-volatile memory at MTA0.
func (s *Session) ProgramSix(ctx context.Context, data []byte) (MemoryAddress, error) {
	if len(data) != MaxPayload {
		return MemoryAddress{}, fmt.Errorf("%w: program6 takes exactly %d bytes, got %d", ErrInvalidArgument, MaxPayload, len(data))
	}
	return s.transfer(ctx, PROGRAM_6, data)
}

// transfer runs a write style command whose reply carries the new MTA0.
func (s *Session) transfer(ctx context.Context, cmd byte, payload []byte) (MemoryAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, cmd, payload)
	if err != nil {
		return MemoryAddress{}, err
	}
	addr := decodeAddress(crm)
	s.mta = &MTA{Number: 0, Extension: addr.Extension, Address: addr.Address}
	return addr, nil
}

func decodeAddress(crm []byte) MemoryAddress {
	return MemoryAddress{Extension: crm[3], Address: getAddress(crm[4:8])}
}

func (s *Session) SetSessionStatus(ctx context.Context, status SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.command(ctx, SET_S_STATUS, []byte{status.Encode()})
	return err
}

func (s *Session) GetSessionStatus(ctx context.Context) (SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, GET_S_STATUS, nil)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatusFromByte(crm[3]), nil
}

// SelectCalibrationPage makes the page MTA0 points at the active one.
func (s *Session) SelectCalibrationPage(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.command(ctx, SELECT_CAL_PAGE, nil)
	return err
}

func (s *Session) GetActiveCalibrationPage(ctx context.Context) (MemoryAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, GET_ACTIVE_CAL_PAGE, nil)
	if err != nil {
		return MemoryAddress{}, err
	}
	return decodeAddress(crm), nil
}

// GetCCPVersion tells the ECU which version the master speaks and returns
// the version it implements.
func (s *Session) GetCCPVersion(ctx context.Context, main, release byte) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, GET_CCP_VERSION, []byte{main, release})
	if err != nil {
		return Version{}, err
	}
	return Version{Main: crm[3], Release: crm[4]}, nil
}

// BuildChecksum asks the ECU for a checksum over size bytes from MTA0.
func (s *Session) BuildChecksum(ctx context.Context, size uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crm, err := s.command(ctx, BUILD_CHKSUM, putAddress(nil, size))
	if err != nil {
		return nil, err
	}
	n := int(crm[3])
	if n > 4 {
		return nil, fmt.Errorf("BUILD_CHKSUM: %w: checksum size %d", ErrBadLength, n)
	}
	return append([]byte(nil), crm[4:4+n]...), nil
}

// ClearMemory erases size bytes of non-volatile memory from MTA0.
func (s *Session) ClearMemory(ctx context.Context, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.command(ctx, CLEAR_MEMORY, putAddress(nil, size))
	return err
}

// Move copies size bytes from MTA0 to MTA1.
func (s *Session) Move(ctx context.Context, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.command(ctx, MOVE, putAddress(nil, size))
	return err
}
