// Package frame defines the wire-shape types the executor passes to and
// receives from its framing/security collaborators, plus the collaborator
// interfaces themselves (§6 "Frame/security"). Actual IEEE 802.15.4
// header parsing, authentication, and encryption are out of scope here,
// mirroring the spec's own treatment of them as external collaborators;
// this package only fixes the data shapes and call contracts a
// collaborator must honor, the way the KISS framing layer in the
// teacher's AX.25 reference fixes a wire envelope without owning the
// radio that carries it.
package frame

import "github.com/ieee802154e/tsch/asn"

// MaxLen bounds the payload of a single over-the-air frame.
const MaxLen = 127

// FrameVersion2012 identifies the IEEE 802.15.4e-2012 frame version,
// required (alongside FrameTypeBeacon) to recognize an inbound frame as
// an enhanced beacon eligible for timesync.
const FrameVersion2012 = 2

// FrameType distinguishes the IEEE 802.15.4 frame types this core cares
// about; data and command frames are opaque to it.
type FrameType int

const (
	FrameTypeBeacon FrameType = iota
	FrameTypeData
	FrameTypeAck
	FrameTypeCommand
)

// Header is the subset of a parsed 802.15.4 MAC header the slot executor
// inspects.
type Header struct {
	FrameType   FrameType
	FrameVer    int
	DstPAN      uint16
	DstAddr     [8]byte
	SrcAddr     [8]byte
	AckRequest  bool
	HeaderLen   int
}

// InputPacket is a reserved input-ring slot's payload (§3 "Input
// packet").
type InputPacket struct {
	Payload [MaxLen]byte
	Len     int
	RxASN   asn.Number
	RSSI    int
	Channel int
}

// Framer is the framing collaborator: header construction/parsing and
// the EB Sync-IE rewrite.
type Framer interface {
	// ParseHeader decodes buf[:n] into h, reporting false on a
	// malformed frame.
	ParseHeader(buf []byte, n int) (h Header, ok bool)
	// CreateEACK builds an enhanced ACK acknowledging the frame
	// described by h, embedding driftMicros as the time-correction IE,
	// into dst. Returns the length written.
	CreateEACK(dst []byte, h Header, driftMicros int64) int
	// ParseEACK extracts the time-correction IE (in microseconds) from
	// a received enhanced ACK.
	ParseEACK(buf []byte, n int) (driftMicros int64, ok bool)
	// UpdateEB rewrites the Sync-IE ASN field of an EB frame in place,
	// immediately before transmission.
	UpdateEB(buf []byte, syncIEOffset int, a asn.Number)
}

// Security is the authentication/encryption collaborator. Implementations
// that do not secure frames may be a no-op passthrough.
type Security interface {
	// SecureFrame encrypts/authenticates src (length n) into dst,
	// returning the new length. Security-disabled implementations copy
	// src into dst unchanged.
	SecureFrame(dst, src []byte, n int) int
	// ParseFrame authenticates/decrypts buf[:n] in place, returning the
	// new length and false if authentication fails.
	ParseFrame(buf []byte, n int) (int, bool)
}
