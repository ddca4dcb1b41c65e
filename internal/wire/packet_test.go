package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Packet{
		{Header: Header{Kind: KindConnect, Sequence: 1, Ack: 0, Session: 0, Flags: 0}, Payload: nil},
		{Header: Header{Kind: KindData, Sequence: 42, Ack: 7, Session: 1234, Flags: FlagCompressed}, Payload: []byte("hello room")},
		{Header: Header{Kind: KindAck, Sequence: 0, Ack: 100, Session: 9999}, Payload: []byte{}},
	}

	for _, want := range cases {
		encoded := Encode(want)
		got, err := Decode(encoded)
		require.NoError(t, err)

		assert.Equal(t, want.Header.Kind, got.Header.Kind)
		assert.Equal(t, want.Header.Sequence, got.Header.Sequence)
		assert.Equal(t, want.Header.Ack, got.Header.Ack)
		assert.Equal(t, want.Header.Session, got.Header.Session)
		assert.Equal(t, want.Header.Flags, got.Header.Flags)
		assert.Equal(t, len(want.Payload), len(got.Payload))
		if len(want.Payload) > 0 {
			assert.Equal(t, want.Payload, got.Payload)
		}
	}
}

func TestEncodeFixedHeaderSize(t *testing.T) {
	buf := Encode(Packet{Header: Header{Kind: KindPing}})
	assert.Len(t, buf, HeaderSize)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	buf := Encode(Packet{Header: Header{Kind: KindData, Sequence: 5}, Payload: []byte("abc")})
	buf[HeaderSize] ^= 0xFF // corrupt payload without touching checksum

	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	buf := Encode(Packet{Header: Header{Kind: KindData}, Payload: []byte("abcdef")})
	truncated := buf[:len(buf)-3]

	_, err := Decode(truncated)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecodeUnknownKindIsNotAnError(t *testing.T) {
	buf := Encode(Packet{Header: Header{Kind: Kind(0xEE)}})
	pkt, err := Decode(buf)
	require.NoError(t, err)
	assert.False(t, IsKnownKind(pkt.Header.Kind))
}

func TestMaxDatagramCeilingBoundary(t *testing.T) {
	payload := make([]byte, MaxDatagramSize-HeaderSize)
	buf := Encode(Packet{Header: Header{Kind: KindData}, Payload: payload})
	assert.Len(t, buf, MaxDatagramSize)

	_, err := Decode(buf)
	assert.NoError(t, err)
}
