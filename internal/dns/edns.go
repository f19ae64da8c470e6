package dns

import (
	"encoding/binary"
	"fmt"
)

// EDNS(0) constants per RFC 6891.
const (
	// ResponseOPTPayloadSize is the UDP payload size advertised in the
	// minimal OPT record appended to responses for EDNS-aware clients.
	ResponseOPTPayloadSize = 4096

	// responseOPTLen is the size of that minimal OPT record: root name,
	// type, class, ttl, rdlength, empty rdata.
	responseOPTLen = 11
)

// ParseOPTAt reads the fixed part of an OPT pseudo-record at off within a
// validated message and returns the requester's advertised UDP payload
// size, which OPT carries in the class field (RFC 6891 Section 6.1.2).
//
// Only the name, type and class are interpreted. Extended rcode, version,
// flags and rdata are left to the caller, which keeps the raw record bytes
// for verbatim forwarding.
func ParseOPTAt(msg []byte, off int) (uint16, error) {
	// Root name, type (2), class (2).
	if off < 0 || off+5 > len(msg) {
		return 0, fmt.Errorf("%w: not enough space for OPT", ErrWire)
	}
	if msg[off] != 0 {
		return 0, fmt.Errorf("%w: OPT name is not root", ErrWire)
	}
	rrtype := RecordType(binary.BigEndian.Uint16(msg[off+1 : off+3]))
	if rrtype != TypeOPT {
		return 0, fmt.Errorf("%w: not an OPT record (type %d)", ErrWire, rrtype)
	}
	return binary.BigEndian.Uint16(msg[off+3 : off+5]), nil
}

// LocateOPT scans a message for an OPT record in the additional section
// and returns its byte bounds [start, end). ok is false when the message
// carries no OPT; a non-nil error means the message could not be walked
// (the caller treats that the same as no OPT).
func LocateOPT(msg []byte) (start, end int, ok bool, err error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return 0, 0, false, err
	}
	for range h.QDCount {
		if err := skipQuestion(msg, &off); err != nil {
			return 0, 0, false, err
		}
	}
	for range int(h.ANCount) + int(h.NSCount) {
		if _, err := skipRecord(msg, &off); err != nil {
			return 0, 0, false, err
		}
	}
	for range h.ARCount {
		rrStart := off
		rrtype, err := skipRecord(msg, &off)
		if err != nil {
			return 0, 0, false, err
		}
		if rrtype == TypeOPT {
			return rrStart, off, true, nil
		}
	}
	return 0, 0, false, nil
}

// skipQuestion advances *off past one question entry.
func skipQuestion(msg []byte, off *int) error {
	if err := SkipName(msg, off); err != nil {
		return err
	}
	if *off+4 > len(msg) {
		return fmt.Errorf("%w: unexpected EOF while skipping question", ErrWire)
	}
	*off += 4
	return nil
}

// skipRecord advances *off past one resource record, returning its type.
func skipRecord(msg []byte, off *int) (RecordType, error) {
	if err := SkipName(msg, off); err != nil {
		return 0, err
	}
	if *off+10 > len(msg) {
		return 0, fmt.Errorf("%w: unexpected EOF while skipping record", ErrWire)
	}
	rrtype := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10 + rdlen
	if *off > len(msg) {
		return 0, fmt.Errorf("%w: rdata extends past message", ErrWire)
	}
	return rrtype, nil
}

// appendResponseOPT writes the minimal response OPT record: root name,
// type OPT, class = advertised payload size, zero extended rcode, version
// and flags, empty rdata.
func appendResponseOPT(b []byte) []byte {
	var opt [responseOPTLen]byte
	binary.BigEndian.PutUint16(opt[1:3], uint16(TypeOPT))
	binary.BigEndian.PutUint16(opt[3:5], ResponseOPTPayloadSize)
	return append(b, opt[:]...)
}
