package dns

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Record represents a parsed resource record.
//
// Data is type-specific:
//   - A/AAAA/OPT and unknown types: []byte (raw rdata)
//   - CNAME/NS/PTR: string (target name, decompressed)
//   - MX: MXData
//   - SOA: SOAData
type Record struct {
	Name  string
	Type  RecordType
	Class RecordClass
	TTL   uint32
	Data  any
}

// MXData is the rdata of an MX record.
type MXData struct {
	Preference uint16
	Exchange   string
}

// SOAData is the rdata of an SOA record (RFC 1035 Section 3.3.13).
type SOAData struct {
	MName   string // Primary name server
	RName   string // Responsible mailbox
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// ParseRecord parses a resource record from the message at the given
// offset, advancing *off past it. Name-bearing rdata (CNAME, NS, PTR, MX,
// SOA) is decompressed so the record stands alone outside its message.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading record", ErrWire)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading rdata", ErrWire)
	}

	var data any
	switch RecordType(rrType) {
	case TypeCNAME, TypeNS, TypePTR:
		target, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != rdlen {
			return Record{}, fmt.Errorf("%w: rdata length mismatch for name-based type", ErrWire)
		}
		data = target
	case TypeMX:
		pref, err := readUint16(msg, off)
		if err != nil {
			return Record{}, err
		}
		exchange, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off-start != rdlen {
			return Record{}, fmt.Errorf("%w: rdata length mismatch for MX", ErrWire)
		}
		data = MXData{Preference: pref, Exchange: exchange}
	case TypeSOA:
		mname, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		rname, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		if *off+20 > len(msg) || *off-start+20 != rdlen {
			return Record{}, fmt.Errorf("%w: rdata length mismatch for SOA", ErrWire)
		}
		data = SOAData{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
			Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
			Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
			Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
			Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
		}
		*off += 20
	default:
		raw := make([]byte, rdlen)
		copy(raw, msg[start:start+rdlen])
		*off = start + rdlen
		data = raw
	}

	return Record{
		Name:  name,
		Type:  RecordType(rrType),
		Class: RecordClass(rrClass),
		TTL:   ttl,
		Data:  data,
	}, nil
}

// MarshalRData serializes the record's rdata without compression.
func (rr Record) MarshalRData() ([]byte, error) {
	switch rr.Type {
	case TypeA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("%w: A rdata must be 4 bytes", ErrWire)
		}
		return b, nil
	case TypeAAAA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("%w: AAAA rdata must be 16 bytes", ErrWire)
		}
		return b, nil
	case TypeCNAME, TypeNS, TypePTR:
		target, ok := rr.Data.(string)
		if !ok {
			return nil, fmt.Errorf("%w: name-based rdata must be a string", ErrWire)
		}
		return EncodeName(target)
	case TypeMX:
		mx, ok := rr.Data.(MXData)
		if !ok {
			return nil, fmt.Errorf("%w: MX rdata must be MXData", ErrWire)
		}
		exchange, err := EncodeName(mx.Exchange)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 2+len(exchange))
		binary.BigEndian.PutUint16(out[0:2], mx.Preference)
		copy(out[2:], exchange)
		return out, nil
	case TypeSOA:
		soa, ok := rr.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("%w: SOA rdata must be SOAData", ErrWire)
		}
		mname, err := EncodeName(soa.MName)
		if err != nil {
			return nil, err
		}
		rname, err := EncodeName(soa.RName)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(mname)+len(rname)+20)
		out = append(out, mname...)
		out = append(out, rname...)
		var fixed [20]byte
		binary.BigEndian.PutUint32(fixed[0:4], soa.Serial)
		binary.BigEndian.PutUint32(fixed[4:8], soa.Refresh)
		binary.BigEndian.PutUint32(fixed[8:12], soa.Retry)
		binary.BigEndian.PutUint32(fixed[12:16], soa.Expire)
		binary.BigEndian.PutUint32(fixed[16:20], soa.Minimum)
		return append(out, fixed[:]...), nil
	default:
		if b, ok := rr.Data.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: unsupported rdata for type %d", ErrWire, rr.Type)
	}
}

// IPv4 returns the address of an A record.
func (rr Record) IPv4() (net.IP, bool) {
	if rr.Type != TypeA {
		return nil, false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 4 {
		return nil, false
	}
	return net.IPv4(b[0], b[1], b[2], b[3]), true
}

// IPv6 returns the address of an AAAA record.
func (rr Record) IPv6() (net.IP, bool) {
	if rr.Type != TypeAAAA {
		return nil, false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 16 {
		return nil, false
	}
	return net.IP(b), true
}
