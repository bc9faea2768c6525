// Package ccp implements the master side of the CAN Calibration Protocol.
//
// A Session owns the command counter and connection state for one ECU. Each
// operation builds an 8 byte CRO, hands it to a Transport and checks the
// CRM that comes back before decoding it. Only one command is ever in
// flight per Session.
package ccp
