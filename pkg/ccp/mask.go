package ccp

import "strings"

// Resource mask bits. The protocol names them CAL, DAQ and PGM.
const (
	ResourceWrite byte = 0x01 // CAL
	ResourceRead  byte = 0x02 // DAQ
	ResourceFlash byte = 0x40 // PGM
)

// Session status bits. Bits 3-5 are reserved.
const (
	StatusCalibration     byte = 0x01
	StatusDataAcquisition byte = 0x02
	StatusResume          byte = 0x04
	StatusStore           byte = 0x40
	StatusRun             byte = 0x80
)

// ResourceMask describes which ECU resources are requested, available or
// protected.
type ResourceMask struct {
	Read  bool
	Write bool
	Flash bool
}

func NewResourceMask(read, write, flash bool) ResourceMask {
	return ResourceMask{Read: read, Write: write, Flash: flash}
}

// ResourceMaskFromByte decodes a mask, ignoring bits that carry no resource.
func ResourceMaskFromByte(b byte) ResourceMask {
	return ResourceMask{
		Read:  b&ResourceRead != 0,
		Write: b&ResourceWrite != 0,
		Flash: b&ResourceFlash != 0,
	}
}

func (m ResourceMask) Encode() byte {
	var out byte
	if m.Write {
		out |= ResourceWrite
	}
	if m.Read {
		out |= ResourceRead
	}
	if m.Flash {
		out |= ResourceFlash
	}
	return out
}

func (m ResourceMask) Empty() bool {
	return m.Encode() == 0
}

func (m ResourceMask) String() string {
	return flagString([]string{"CAL", "DAQ", "PGM"}, []bool{m.Write, m.Read, m.Flash})
}

// SessionStatus mirrors the ECU session status byte.
type SessionStatus struct {
	Calibration     bool
	DataAcquisition bool
	Resume          bool
	Store           bool
	Run             bool
}

func NewSessionStatus(cal, daq, resume, store, run bool) SessionStatus {
	return SessionStatus{
		Calibration:     cal,
		DataAcquisition: daq,
		Resume:          resume,
		Store:           store,
		Run:             run,
	}
}

func SessionStatusFromByte(b byte) SessionStatus {
	return SessionStatus{
		Calibration:     b&StatusCalibration != 0,
		DataAcquisition: b&StatusDataAcquisition != 0,
		Resume:          b&StatusResume != 0,
		Store:           b&StatusStore != 0,
		Run:             b&StatusRun != 0,
	}
}

func (s SessionStatus) Encode() byte {
	var out byte
	if s.Calibration {
		out |= StatusCalibration
	}
	if s.DataAcquisition {
		out |= StatusDataAcquisition
	}
	if s.Resume {
		out |= StatusResume
	}
	if s.Store {
		out |= StatusStore
	}
	if s.Run {
		out |= StatusRun
	}
	return out
}

func (s SessionStatus) String() string {
	return flagString(
		[]string{"CAL", "DAQ", "RESUME", "STORE", "RUN"},
		[]bool{s.Calibration, s.DataAcquisition, s.Resume, s.Store, s.Run},
	)
}

func flagString(names []string, set []bool) string {
	var parts []string
	for i, name := range names {
		if set[i] {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
