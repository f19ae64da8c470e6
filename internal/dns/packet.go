package dns

import "fmt"

// Message is a fully parsed DNS message (RFC 1035 Section 4).
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Parse limits for incoming messages, guarding against headers that claim
// far more records than the packet can hold.
const (
	MaxRRPerSection = 100
	maxParseCap     = 32 // initial allocation cap per section
)

// ParseMessage parses a complete DNS message including all four sections.
func ParseMessage(msg []byte) (Message, error) {
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Message{}, err
	}

	m := Message{Header: h}

	capped := func(count uint16) int {
		return min(int(count), maxParseCap)
	}

	m.Questions = make([]Question, 0, capped(h.QDCount))
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Message{}, err
		}
		m.Questions = append(m.Questions, q)
	}

	parseSection := func(count uint16) ([]Record, error) {
		if int(count) > MaxRRPerSection {
			return nil, fmt.Errorf("%w: too many records in section (%d)", ErrWire, count)
		}
		rrs := make([]Record, 0, capped(count))
		for range count {
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return nil, err
			}
			rrs = append(rrs, rr)
		}
		return rrs, nil
	}

	if m.Answers, err = parseSection(h.ANCount); err != nil {
		return Message{}, err
	}
	if m.Authorities, err = parseSection(h.NSCount); err != nil {
		return Message{}, err
	}
	if m.Additionals, err = parseSection(h.ARCount); err != nil {
		return Message{}, err
	}
	return m, nil
}
