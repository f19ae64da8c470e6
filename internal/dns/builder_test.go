package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRoundTrip(t *testing.T) {
	b := NewBuilder(0x1234, QRFlag|RDFlag, AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(Question{Name: "example.test", Type: TypeA, Class: ClassIN}))
	require.NoError(t, b.PutRR(SectionAnswer, Record{
		Name: "example.test", Type: TypeA, Class: ClassIN,
		Data: []byte{203, 0, 113, 7},
	}, 50))
	require.NoError(t, b.PutRR(SectionAuthority, Record{
		Name: "test", Type: TypeSOA, Class: ClassIN,
		Data: SOAData{MName: "ns1.test", RName: "hostmaster.test", Serial: 1, Refresh: 2, Retry: 3, Expire: 4, Minimum: 5},
	}, 300))

	m, err := ParseMessage(b.Finish())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), m.Header.ID)
	assert.Equal(t, QRFlag|RDFlag, m.Header.Flags)
	require.Len(t, m.Questions, 1)
	assert.Equal(t, Question{Name: "example.test", Type: TypeA, Class: ClassIN}, m.Questions[0])
	require.Len(t, m.Answers, 1)
	assert.Equal(t, uint32(50), m.Answers[0].TTL)
	assert.Equal(t, []byte{203, 0, 113, 7}, m.Answers[0].Data)
	require.Len(t, m.Authorities, 1)
	soa, ok := m.Authorities[0].Data.(SOAData)
	require.True(t, ok)
	assert.Equal(t, "ns1.test", soa.MName)
	assert.Equal(t, uint32(5), soa.Minimum)
}

func TestBuilderCompressesNames(t *testing.T) {
	b := NewBuilder(1, 0, AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(Question{Name: "a.example.test", Type: TypeCNAME, Class: ClassIN}))
	require.NoError(t, b.PutRR(SectionAnswer, Record{
		Name: "a.example.test", Type: TypeCNAME, Class: ClassIN,
		Data: "b.example.test",
	}, 60))

	msg := b.Finish()
	// The answer's owner name must be a 2-byte pointer back to the
	// question name, and the rdata target shares the example.test suffix.
	uncompressed := len("\x01a\x07example\x04test\x00")*3 + HeaderSize + 4 + 10
	assert.Less(t, len(msg), uncompressed)

	m, err := ParseMessage(msg)
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, "a.example.test", m.Answers[0].Name)
	assert.Equal(t, "b.example.test", m.Answers[0].Data)
}

func TestBuilderLimitRestoresCursor(t *testing.T) {
	b := NewBuilder(1, 0, 48)
	require.NoError(t, b.PutQuestion(Question{Name: "example.test", Type: TypeA, Class: ClassIN}))

	require.NoError(t, b.PutRR(SectionAnswer, Record{
		Name: "example.test", Type: TypeA, Class: ClassIN, Data: []byte{1, 2, 3, 4},
	}, 60))
	lenBefore := b.Len()

	err := b.PutRR(SectionAnswer, Record{
		Name: "another-name.test", Type: TypeA, Class: ClassIN, Data: []byte{5, 6, 7, 8},
	}, 60)
	require.ErrorIs(t, err, ErrMessageFull)
	assert.Equal(t, lenBefore, b.Len())

	// The message built so far is still valid with correct counts.
	m, err := ParseMessage(b.Finish())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), m.Header.ANCount)
	require.Len(t, m.Answers, 1)
}

func TestBuilderFailedPutLeavesNoCompressionTargets(t *testing.T) {
	b := NewBuilder(1, 0, 40)
	require.NoError(t, b.PutQuestion(Question{Name: "q.test", Type: TypeA, Class: ClassIN}))

	// This put fails on the limit; its names must not become pointer
	// targets for later puts.
	err := b.PutRR(SectionAnswer, Record{
		Name: "a-rather-long-owner-name.test", Type: TypeA, Class: ClassIN, Data: []byte{1, 2, 3, 4},
	}, 60)
	require.ErrorIs(t, err, ErrMessageFull)

	require.NoError(t, b.PutRR(SectionAnswer, Record{
		Name: "q.test", Type: TypeA, Class: ClassIN, Data: []byte{1, 2, 3, 4},
	}, 60))
	m, err := ParseMessage(b.Finish())
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	assert.Equal(t, "q.test", m.Answers[0].Name)
}

func TestBuilderResponseOPT(t *testing.T) {
	b := NewBuilder(1, QRFlag, AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(Question{Name: "example.test", Type: TypeA, Class: ClassIN}))
	require.NoError(t, b.PutResponseOPT())

	m, err := ParseMessage(b.Finish())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), m.Header.ARCount)
	require.Len(t, m.Additionals, 1)
	opt := m.Additionals[0]
	assert.Equal(t, TypeOPT, opt.Type)
	assert.Equal(t, RecordClass(ResponseOPTPayloadSize), opt.Class)
	assert.Equal(t, uint32(0), opt.TTL)
	assert.Empty(t, opt.Data)
}

func TestBuilderPutRawRRVerbatim(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x29, 0x04, 0xD0, 0, 0, 0, 0, 0x00, 0x00}
	b := NewBuilder(1, 0, AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(Question{Name: "example.test", Type: TypeA, Class: ClassIN}))
	require.NoError(t, b.PutRawRR(SectionAdditional, raw))

	msg := b.Finish()
	assert.Equal(t, raw, msg[len(msg)-len(raw):])
	m, err := ParseMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), m.Header.ARCount)
}

func TestBuilderQuestionBoundedByHardLimit(t *testing.T) {
	// A tiny record limit still leaves room for the question section.
	b := NewBuilder(1, 0, 1)
	require.NoError(t, b.PutQuestion(Question{Name: "a-name-larger-than-the-limit.test", Type: TypeA, Class: ClassIN}))
	err := b.PutRR(SectionAnswer, Record{Name: "x.test", Type: TypeA, Class: ClassIN, Data: []byte{1, 2, 3, 4}}, 1)
	assert.ErrorIs(t, err, ErrMessageFull)
}
