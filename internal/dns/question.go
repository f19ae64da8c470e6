package dns

import "fmt"

// Question represents a DNS question (RFC 1035 Section 4.1.2).
//
// Name keeps the octet case the sender used. Comparisons must go through
// EqualNames or NormalizeName; responses echo Name as received.
type Question struct {
	Name  string      // Domain name (e.g., "example.test")
	Type  RecordType  // Record type (e.g., TypeA, TypeAAAA)
	Class RecordClass // Record class (usually ClassIN)
}

// ParseQuestion parses a question from the message at the given offset,
// advancing *off past it on success.
func ParseQuestion(msg []byte, off *int) (Question, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Question{}, err
	}
	qtype, err := readUint16(msg, off)
	if err != nil {
		return Question{}, fmt.Errorf("%w: unexpected EOF while reading question", ErrWire)
	}
	qclass, err := readUint16(msg, off)
	if err != nil {
		return Question{}, fmt.Errorf("%w: unexpected EOF while reading question", ErrWire)
	}
	return Question{Name: name, Type: RecordType(qtype), Class: RecordClass(qclass)}, nil
}
