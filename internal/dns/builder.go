package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Section identifies the record section a Builder put targets.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

// Builder assembles a DNS message with RFC 1035 name compression and a
// limit cursor: a put that would cross the caller's body limit fails with
// ErrMessageFull and leaves the buffer at the previous record boundary, so
// the message built so far remains valid and sendable.
//
// The limit bounds the message body (bytes after the 12-byte header) for
// record puts. The question section is bounded only by
// AbsoluteMaxMessageData, so a truncated reply always carries its
// question.
type Builder struct {
	buf   []byte
	limit int
	names map[string]int // normalized name suffix -> message offset
	hdr   Header
}

type nameOffset struct {
	suffix string
	off    int
}

// NewBuilder starts a message with the given id, flags and body limit.
func NewBuilder(id, flags uint16, limit int) *Builder {
	if limit > AbsoluteMaxMessageData {
		limit = AbsoluteMaxMessageData
	}
	return &Builder{
		buf:   make([]byte, HeaderSize, HeaderSize+MinMessageSize),
		limit: limit,
		names: make(map[string]int),
		hdr:   Header{ID: id, Flags: flags},
	}
}

// Flags returns the current flags word.
func (b *Builder) Flags() uint16 { return b.hdr.Flags }

// SetFlags replaces the flags word.
func (b *Builder) SetFlags(flags uint16) { b.hdr.Flags = flags }

// SetTC sets the truncation bit.
func (b *Builder) SetTC() { b.hdr.Flags |= TCFlag }

// Len returns the total message length built so far, header included.
func (b *Builder) Len() int { return len(b.buf) }

// Header returns a copy of the header as it would be emitted now.
func (b *Builder) Header() Header { return b.hdr }

// PutQuestion appends a question entry.
func (b *Builder) PutQuestion(q Question) error {
	mark := len(b.buf)
	var pending []nameOffset
	if err := b.putName(q.Name, &pending); err != nil {
		b.buf = b.buf[:mark]
		return err
	}
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(q.Type))
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(q.Class))
	if len(b.buf)-HeaderSize > AbsoluteMaxMessageData {
		b.buf = b.buf[:mark]
		return fmt.Errorf("%w: question does not fit", ErrMessageFull)
	}
	b.commit(pending)
	b.hdr.QDCount++
	return nil
}

// PutRR appends a resource record to the given section with the given
// TTL. On ErrMessageFull the buffer is restored to the last record
// boundary; the caller decides whether to truncate or abort.
func (b *Builder) PutRR(section Section, rr Record, ttl uint32) error {
	mark := len(b.buf)
	var pending []nameOffset

	err := b.putRR(rr, ttl, &pending)
	if err == nil && len(b.buf)-HeaderSize > b.limit {
		err = ErrMessageFull
	}
	if err != nil {
		b.buf = b.buf[:mark]
		return err
	}
	b.commit(pending)
	b.bump(section)
	return nil
}

func (b *Builder) putRR(rr Record, ttl uint32, pending *[]nameOffset) error {
	if err := b.putName(rr.Name, pending); err != nil {
		return err
	}
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(rr.Type))
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(rr.Class))
	b.buf = binary.BigEndian.AppendUint32(b.buf, ttl)

	rdlenAt := len(b.buf)
	b.buf = append(b.buf, 0, 0)
	rdataAt := len(b.buf)

	switch data := rr.Data.(type) {
	case string:
		// CNAME/NS/PTR target, compressible per RFC 1035 Section 3.3.
		if err := b.putName(data, pending); err != nil {
			return err
		}
	case MXData:
		b.buf = binary.BigEndian.AppendUint16(b.buf, data.Preference)
		if err := b.putName(data.Exchange, pending); err != nil {
			return err
		}
	case SOAData:
		if err := b.putName(data.MName, pending); err != nil {
			return err
		}
		if err := b.putName(data.RName, pending); err != nil {
			return err
		}
		b.buf = binary.BigEndian.AppendUint32(b.buf, data.Serial)
		b.buf = binary.BigEndian.AppendUint32(b.buf, data.Refresh)
		b.buf = binary.BigEndian.AppendUint32(b.buf, data.Retry)
		b.buf = binary.BigEndian.AppendUint32(b.buf, data.Expire)
		b.buf = binary.BigEndian.AppendUint32(b.buf, data.Minimum)
	case []byte:
		b.buf = append(b.buf, data...)
	case nil:
		// empty rdata
	default:
		return fmt.Errorf("%w: unsupported rdata for type %d", ErrWire, rr.Type)
	}

	rdlen := len(b.buf) - rdataAt
	if rdlen > 0xFFFF {
		return fmt.Errorf("%w: rdata too long", ErrWire)
	}
	binary.BigEndian.PutUint16(b.buf[rdlenAt:rdlenAt+2], uint16(rdlen))
	return nil
}

// PutRawRR appends pre-encoded record bytes verbatim to the given
// section. The bytes must form a complete record whose names carry no
// compression pointers (the relay uses this to echo a client's OPT).
func (b *Builder) PutRawRR(section Section, raw []byte) error {
	if len(b.buf)+len(raw)-HeaderSize > b.limit {
		return ErrMessageFull
	}
	b.buf = append(b.buf, raw...)
	b.bump(section)
	return nil
}

// PutResponseOPT appends the minimal response OPT record
// (payload size 4096, zero extended rcode/version/flags, empty rdata)
// to the additional section.
func (b *Builder) PutResponseOPT() error {
	if len(b.buf)+responseOPTLen-HeaderSize > b.limit {
		return ErrMessageFull
	}
	b.buf = appendResponseOPT(b.buf)
	b.hdr.ARCount++
	return nil
}

// Finish patches the header and returns the wire-format message.
func (b *Builder) Finish() []byte {
	b.hdr.pack(b.buf[:HeaderSize])
	return b.buf
}

func (b *Builder) bump(section Section) {
	switch section {
	case SectionAnswer:
		b.hdr.ANCount++
	case SectionAuthority:
		b.hdr.NSCount++
	case SectionAdditional:
		b.hdr.ARCount++
	}
}

// commit records compression offsets for names written by a successful
// put. Offsets are withheld until commit so a rolled-back put cannot
// leave pointers into discarded bytes.
func (b *Builder) commit(pending []nameOffset) {
	for _, p := range pending {
		if _, exists := b.names[p.suffix]; !exists {
			b.names[p.suffix] = p.off
		}
	}
}

// putName writes a name using compression against previously committed
// names. Each label is emitted until a known suffix allows a pointer.
func (b *Builder) putName(name string, pending *[]nameOffset) error {
	name = trimDot(name)
	if name == "" {
		b.buf = append(b.buf, 0)
		return nil
	}

	rest := name
	for rest != "" {
		suffix := NormalizeName(rest)
		if off, ok := b.names[suffix]; ok {
			b.buf = binary.BigEndian.AppendUint16(b.buf, 0xC000|uint16(off))
			return nil
		}
		label := rest
		if dot := strings.IndexByte(rest, '.'); dot >= 0 {
			label = rest[:dot]
			rest = rest[dot+1:]
		} else {
			rest = ""
		}
		if label == "" {
			return fmt.Errorf("%w: empty label in %q", ErrWire, name)
		}
		if len(label) > 63 {
			return fmt.Errorf("%w: label too long (%d > 63): %q", ErrWire, len(label), label)
		}
		for j := range len(label) {
			if label[j] > 0x7F {
				return fmt.Errorf("%w: name must be ASCII", ErrWire)
			}
		}
		if off := len(b.buf); off < 0x4000 {
			*pending = append(*pending, nameOffset{suffix: suffix, off: off})
		}
		b.buf = append(b.buf, byte(len(label)))
		b.buf = append(b.buf, label...)
	}
	b.buf = append(b.buf, 0)
	return nil
}
