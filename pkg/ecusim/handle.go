package ecusim

import (
	"bytes"
	"encoding/binary"

	"github.com/roffe/goccp/pkg/ccp"
)

// Handle processes one frame seen on the bus and returns the reply, or
// nil when the ECU stays silent.
func (e *ECU) Handle(id uint32, cro []byte) []byte {
	if id != e.croID || len(cro) != ccp.FrameLength {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dropReplies > 0 {
		e.dropReplies--
		return nil
	}
	resp := e.dispatch(cro)
	if resp == nil {
		return nil
	}
	if e.badCounters > 0 {
		e.badCounters--
		resp[2]++
	}
	return resp
}

func (e *ECU) dispatch(cro []byte) []byte {
	cmd, ctr, p := cro[0], cro[1], cro[2:]

	switch cmd {
	case ccp.CONNECT:
		if !e.addressed(p[0:2]) {
			return nil
		}
		e.connected = true
		return ack(ctr)
	case ccp.TEST:
		if !e.addressed(p[0:2]) {
			return nil
		}
		return ack(ctr)
	}

	// A disconnected slave ignores everything but CONNECT and TEST.
	if !e.connected {
		return nil
	}

	switch cmd {
	case ccp.DISCONNECT:
		if !e.addressed(p[2:4]) {
			return nil
		}
		e.connected = false
		if p[0] == ccp.DISCONNECT_END {
			e.locked = e.protect
			e.status = 0
		}
		return ack(ctr)
	case ccp.EXCHANGE_ID:
		return ack(ctr, 0x00, 0x00, e.available, e.locked)
	case ccp.GET_SEED:
		return e.getSeed(ctr, p[0])
	case ccp.UNLOCK:
		return e.unlock(ctr, p)
	case ccp.SET_MTA:
		if p[0] > 1 {
			return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
		}
		e.mta[p[0]] = pointer{ext: p[1], addr: binary.BigEndian.Uint32(p[2:6])}
		return ack(ctr)
	case ccp.UPLOAD:
		return e.upload(ctr, &e.mta[0], int(p[0]))
	case ccp.SHORT_UP:
		ptr := pointer{ext: p[1], addr: binary.BigEndian.Uint32(p[2:6])}
		return e.upload(ctr, &ptr, int(p[0]))
	case ccp.DNLOAD:
		if p[0] > ccp.MaxBlockSize {
			return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
		}
		return e.write(ctr, ccp.ResourceWrite, p[1:1+p[0]])
	case ccp.DNLOAD_6:
		return e.write(ctr, ccp.ResourceWrite, p)
	case ccp.PROGRAM:
		if p[0] > ccp.MaxBlockSize {
			return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
		}
		return e.write(ctr, ccp.ResourceFlash, p[1:1+p[0]])
	case ccp.PROGRAM_6:
		return e.write(ctr, ccp.ResourceFlash, p)
	case ccp.CLEAR_MEMORY:
		return e.clear(ctr, binary.BigEndian.Uint32(p[0:4]))
	case ccp.MOVE:
		return e.move(ctr, binary.BigEndian.Uint32(p[0:4]))
	case ccp.BUILD_CHKSUM:
		return e.checksum(ctr, binary.BigEndian.Uint32(p[0:4]))
	case ccp.SET_S_STATUS:
		e.status = p[0]
		return ack(ctr)
	case ccp.GET_S_STATUS:
		return ack(ctr, e.status)
	case ccp.SELECT_CAL_PAGE:
		if e.locked&ccp.ResourceWrite != 0 {
			return nack(ctr, ccp.ACCESS_DENIED)
		}
		e.calPage = e.mta[0]
		return ack(ctr)
	case ccp.GET_ACTIVE_CAL_PAGE:
		return ack(ctr, addressBytes(e.calPage)...)
	case ccp.GET_CCP_VERSION:
		return ack(ctr, 0x02, 0x01)
	default:
		return nack(ctr, ccp.UNKNOWN_COMMAND)
	}
}

func (e *ECU) addressed(station []byte) bool {
	return binary.LittleEndian.Uint16(station) == e.station
}

func (e *ECU) getSeed(ctr, resource byte) []byte {
	if resource&e.available == 0 || resource&^e.available != 0 {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	e.pending = resource
	if e.locked&resource == 0 {
		return ack(ctr, 0x00)
	}
	return ack(ctr, append([]byte{0x01}, e.seed...)...)
}

func (e *ECU) unlock(ctr byte, key []byte) []byte {
	if e.pending == 0 || !bytes.Equal(key, KeyFor(e.seed)) {
		return nack(ctr, ccp.ACCESS_LOCKED)
	}
	e.locked &^= e.pending
	e.pending = 0
	return ack(ctr, e.available&^e.locked)
}

func (e *ECU) upload(ctr byte, ptr *pointer, size int) []byte {
	if size > ccp.MaxBlockSize {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	b, ok := e.span(ptr.ext, ptr.addr, size)
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	ptr.addr += uint32(size)
	return ack(ctr, b...)
}

func (e *ECU) write(ctr, resource byte, data []byte) []byte {
	if e.locked&resource != 0 {
		return nack(ctr, ccp.ACCESS_DENIED)
	}
	dst, ok := e.span(e.mta[0].ext, e.mta[0].addr, len(data))
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	copy(dst, data)
	e.mta[0].addr += uint32(len(data))
	return ack(ctr, addressBytes(e.mta[0])...)
}

func (e *ECU) clear(ctr byte, size uint32) []byte {
	if e.locked&ccp.ResourceFlash != 0 {
		return nack(ctr, ccp.ACCESS_DENIED)
	}
	dst, ok := e.span(e.mta[0].ext, e.mta[0].addr, int(size))
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	for i := range dst {
		dst[i] = 0xFF
	}
	return ack(ctr)
}

func (e *ECU) move(ctr byte, size uint32) []byte {
	if e.locked&ccp.ResourceWrite != 0 {
		return nack(ctr, ccp.ACCESS_DENIED)
	}
	src, ok := e.span(e.mta[0].ext, e.mta[0].addr, int(size))
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	dst, ok := e.span(e.mta[1].ext, e.mta[1].addr, int(size))
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	copy(dst, src)
	return ack(ctr)
}

// checksum is a 16 bit additive sum over size bytes from MTA0.
func (e *ECU) checksum(ctr byte, size uint32) []byte {
	b, ok := e.span(e.mta[0].ext, e.mta[0].addr, int(size))
	if !ok {
		return nack(ctr, ccp.PARAMETER_OUT_OF_RANGE)
	}
	var sum uint16
	for _, c := range b {
		sum += uint16(c)
	}
	return ack(ctr, 0x02, byte(sum>>8), byte(sum))
}

func addressBytes(p pointer) []byte {
	return binary.BigEndian.AppendUint32([]byte{p.ext}, p.addr)
}

func ack(ctr byte, data ...byte) []byte {
	return reply(ccp.PID_CRM, ccp.ACKNOWLEDGE, ctr, data)
}

func nack(ctr, code byte) []byte {
	return reply(ccp.PID_CRM, code, ctr, nil)
}

func reply(pid, code, ctr byte, data []byte) []byte {
	out := make([]byte, ccp.FrameLength)
	out[0], out[1], out[2] = pid, code, ctr
	copy(out[3:], data)
	return out
}
