package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/reversi/internal/board"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	packets := []Packet{
		ConnectSuccess{ID: 1},
		ConnectSuccess{ID: 0xFFFFFFFFFFFFFFFE},
		Login{Name: "alice"},
		Login{Name: ""},
		LoginAccept{},
		LoginDeny{Reason: "Name already in use."},
		RequestClientList{},
		ClientList{Clients: []ClientEntry{}},
		ClientList{Clients: []ClientEntry{{ID: 1, Name: "alice"}, {ID: 2, Name: "bob"}}},
		RequestGame{Opponent: 2},
		DenyGame{Opponent: 7},
		AbandonGame{Opponent: 3},
		StartGame{Opponent: 2, Color: board.Black},
		StartGame{Opponent: 1, Color: board.White},
		PlacePiece{Opponent: 2, X: 2, Y: 3},
		Pass{Opponent: 2},
		Message{Client: 5, Text: "hello there"},
		Message{Client: 5, Text: "юникод 😀"},
	}

	for _, p := range packets {
		frame, err := Encode(p)
		require.NoError(t, err, "%T", p)
		require.LessOrEqual(t, len(frame), MaxPacketSize)

		decoded, err := Decode(frame[HeaderSize:])
		require.NoError(t, err, "%T", p)
		if cl, ok := p.(ClientList); ok && len(cl.Clients) == 0 {
			// Empty list round-trips as an empty (non-nil) slice.
			assert.Empty(t, decoded.(ClientList).Clients)
			continue
		}
		assert.Equal(t, p, decoded, "%T", p)

		// encode(decode(bytes)) == bytes
		reencoded, err := Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, frame, reencoded, "%T", p)
	}
}

func TestEncode_LiteralBytes(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
		want   []byte
	}{
		{
			name:   "ConnectSuccess(1)",
			packet: ConnectSuccess{ID: 1},
			want: []byte{
				0x0B, 0x00, // length 11
				0x01,                                           // opcode
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // id
			},
		},
		{
			name:   "Login(alice)",
			packet: Login{Name: "alice"},
			want: []byte{
				0x0A, 0x00, // length 10
				0x02,       // opcode
				0x05, 0x00, // name length
				'a', 'l', 'i', 'c', 'e',
			},
		},
		{
			name:   "LoginAccept",
			packet: LoginAccept{},
			want:   []byte{0x03, 0x00, 0x03},
		},
		{
			name:   "StartGame(2, Black)",
			packet: StartGame{Opponent: 2, Color: board.Black},
			want: []byte{
				0x0C, 0x00, // length 12
				0x0A,                                           // opcode
				0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // opponent
				0x00, // black
			},
		},
		{
			name:   "PlacePiece(1, 2, 3)",
			packet: PlacePiece{Opponent: 1, X: 2, Y: 3},
			want: []byte{
				0x0D, 0x00, // length 13
				0x0B,                                           // opcode
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // opponent
				0x02, 0x03, // x, y
			},
		},
		{
			name:   "ClientList([(1, alice)])",
			packet: ClientList{Clients: []ClientEntry{{ID: 1, Name: "alice"}}},
			want: []byte{
				0x14, 0x00, // length 20
				0x06,       // opcode
				0x01, 0x00, // count
				0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // id
				0x05, 0x00, // name length
				'a', 'l', 'i', 'c', 'e',
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, frame)
		})
	}
}

func TestEncode_RejectsOversizedPacket(t *testing.T) {
	_, err := Encode(Message{Client: 1, Text: strings.Repeat("x", MaxPacketSize)})
	require.ErrorIs(t, err, ErrPacketTooLarge)

	// Just under the bound still encodes: header + opcode + id + strlen.
	maxText := MaxPacketSize - HeaderSize - 1 - 8 - 2
	frame, err := Encode(Message{Client: 1, Text: strings.Repeat("x", maxText)})
	require.NoError(t, err)
	assert.Len(t, frame, MaxPacketSize)
}

func TestEncode_DisconnectIsLocalOnly(t *testing.T) {
	_, err := Encode(Disconnect{})
	require.Error(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"unknown opcode", []byte{0xEE}},
		{"disconnect opcode", []byte{0x00}},
		{"truncated id", []byte{0x01, 0x01, 0x02}},
		{"truncated string", []byte{0x02, 0x10, 0x00, 'a'}},
		{"trailing bytes", []byte{0x03, 0xFF}},
		{"bad piece", []byte{0x0A, 1, 0, 0, 0, 0, 0, 0, 0, 0x02}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestReadPacket_Stream(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WritePacket(&stream, Login{Name: "alice"}))
	require.NoError(t, WritePacket(&stream, RequestGame{Opponent: 2}))

	buf := make([]byte, MaxPacketSize)

	p, err := ReadPacket(&stream, buf)
	require.NoError(t, err)
	assert.Equal(t, Login{Name: "alice"}, p)

	p, err = ReadPacket(&stream, buf)
	require.NoError(t, err)
	assert.Equal(t, RequestGame{Opponent: 2}, p)

	// Zero-byte read means the peer is gone.
	_, err = ReadPacket(&stream, buf)
	require.ErrorIs(t, err, ErrClosed)
}

func TestReadPacket_RejectsBadLengths(t *testing.T) {
	buf := make([]byte, MaxPacketSize)

	_, err := ReadPacket(bytes.NewReader([]byte{0x01, 0x00}), buf)
	require.ErrorIs(t, err, ErrDecode)

	_, err = ReadPacket(bytes.NewReader([]byte{0xFF, 0xFF}), buf)
	require.ErrorIs(t, err, ErrDecode)
}

func TestReadPacket_TruncatedPayloadIsClosed(t *testing.T) {
	frame, err := Encode(Login{Name: "alice"})
	require.NoError(t, err)

	buf := make([]byte, MaxPacketSize)
	_, err = ReadPacket(bytes.NewReader(frame[:len(frame)-2]), buf)
	require.ErrorIs(t, err, ErrClosed)
}
