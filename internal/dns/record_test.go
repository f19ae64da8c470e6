package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordMX(t *testing.T) {
	b := NewBuilder(1, 0, AbsoluteMaxMessageData)
	require.NoError(t, b.PutQuestion(Question{Name: "example.test", Type: TypeMX, Class: ClassIN}))
	require.NoError(t, b.PutRR(SectionAnswer, Record{
		Name: "example.test", Type: TypeMX, Class: ClassIN,
		Data: MXData{Preference: 10, Exchange: "mail.example.test"},
	}, 60))

	m, err := ParseMessage(b.Finish())
	require.NoError(t, err)
	require.Len(t, m.Answers, 1)
	mx, ok := m.Answers[0].Data.(MXData)
	require.True(t, ok)
	assert.Equal(t, uint16(10), mx.Preference)
	assert.Equal(t, "mail.example.test", mx.Exchange)
}

func TestParseRecordRejectsShortRdata(t *testing.T) {
	name, err := EncodeName("x.test")
	require.NoError(t, err)
	rr := append([]byte{}, name...)
	// type A, class IN, TTL 0, rdlength 4 but only 2 bytes present.
	rr = append(rr, 0x00, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0x00, 0x04, 1, 2)
	off := 0
	_, err = ParseRecord(rr, &off)
	assert.ErrorIs(t, err, ErrWire)
}

func TestRecordAddressAccessors(t *testing.T) {
	a := Record{Type: TypeA, Data: []byte{192, 0, 2, 33}}
	ip, ok := a.IPv4()
	require.True(t, ok)
	assert.Equal(t, "192.0.2.33", ip.String())

	aaaa := Record{Type: TypeAAAA, Data: append([]byte{0x00, 0x64, 0xff, 0x9b}, make([]byte, 12)...)}
	ip6, ok := aaaa.IPv6()
	require.True(t, ok)
	assert.Equal(t, "64:ff9b::", ip6.String())

	_, ok = a.IPv6()
	assert.False(t, ok)
}
