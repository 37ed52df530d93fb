// Package protocol defines the closed packet vocabulary of the match-making
// service and its bounded binary wire codec.
//
// Wire layout, all values little-endian:
//
//	u16 total length (header included) | u8 opcode | fields
//
// A frame never exceeds MaxPacketSize bytes. Strings are a u16 byte length
// followed by UTF-8 bytes. Client lists are a u16 count followed by
// (u64 id, string name) entries.
package protocol

import (
	"errors"

	"github.com/udisondev/reversi/internal/board"
)

const (
	// MaxPacketSize bounds every frame, header included. Encoding fails
	// beyond the bound; readers reserve exactly this much.
	MaxPacketSize = 512

	// HeaderSize is the u16 length prefix.
	HeaderSize = 2
)

// ClientID identifies a connected peer. 0 is reserved for the server.
type ClientID uint64

// ServerID is the reserved id of the server itself.
const ServerID ClientID = 0

// ErrClosed is returned by ReadPacket when the peer has closed the
// connection (zero-byte read).
var ErrClosed = errors.New("connection closed by peer")

// ErrDecode marks malformed frames. Concrete decode failures wrap it.
var ErrDecode = errors.New("malformed packet")

// ErrPacketTooLarge is returned when an encoded frame would exceed
// MaxPacketSize.
var ErrPacketTooLarge = errors.New("packet exceeds maximum size")

// Opcode tags a packet variant on the wire.
type Opcode uint8

const (
	OpConnectSuccess    Opcode = 0x01
	OpLogin             Opcode = 0x02
	OpLoginAccept       Opcode = 0x03
	OpLoginDeny         Opcode = 0x04
	OpRequestClientList Opcode = 0x05
	OpClientList        Opcode = 0x06
	OpRequestGame       Opcode = 0x07
	OpDenyGame          Opcode = 0x08
	OpAbandonGame       Opcode = 0x09
	OpStartGame         Opcode = 0x0A
	OpPlacePiece        Opcode = 0x0B
	OpPass              Opcode = 0x0C
	OpMessage           Opcode = 0x0D

	// opDisconnect never appears on the wire; Disconnect is synthesized
	// locally when a peer vanishes.
	opDisconnect Opcode = 0x00
)

// Packet is the closed union of every message exchanged between server and
// client. The ClientID carried by game packets is always "the other
// endpoint from the receiver's point of view": leaving the server it names
// the sender, entering the server it names the target.
type Packet interface {
	Opcode() Opcode
}

// ConnectSuccess tells a freshly accepted client its id. Server to client
// only, sent before anything else.
type ConnectSuccess struct {
	ID ClientID
}

// Disconnect is synthesized locally when a connection dies. It is never
// encoded: the codec rejects it on write and cannot produce it on read.
type Disconnect struct{}

// Login claims a login name. Client to server only.
type Login struct {
	Name string
}

// LoginAccept confirms a Login. Server to client only.
type LoginAccept struct{}

// LoginDeny rejects a Login with a human-readable reason. The connection
// stays open; the client may retry.
type LoginDeny struct {
	Reason string
}

// RequestClientList asks for the current client list. Client to server only.
type RequestClientList struct{}

// ClientEntry is one row of a ClientList.
type ClientEntry struct {
	ID   ClientID
	Name string
}

// ClientList is the complete list of logged-in clients. Server to client
// only, broadcast on every login and disconnect.
type ClientList struct {
	Clients []ClientEntry
}

// RequestGame issues or forwards a challenge.
type RequestGame struct {
	Opponent ClientID
}

// DenyGame rejects a pending challenge, or informs a requester that the
// other endpoint is gone.
type DenyGame struct {
	Opponent ClientID
}

// AbandonGame gives up a running game.
type AbandonGame struct {
	Opponent ClientID
}

// StartGame starts a match. Server to client only; Color is the colour the
// receiver will play.
type StartGame struct {
	Opponent ClientID
	Color    board.Piece
}

// PlacePiece plays a stone at (X, Y).
type PlacePiece struct {
	Opponent ClientID
	X, Y     uint8
}

// Pass gives the turn away without placing.
type Pass struct {
	Opponent ClientID
}

// Message is a chat message relayed through the server.
type Message struct {
	Client ClientID
	Text   string
}

func (ConnectSuccess) Opcode() Opcode     { return OpConnectSuccess }
func (Disconnect) Opcode() Opcode         { return opDisconnect }
func (Login) Opcode() Opcode              { return OpLogin }
func (LoginAccept) Opcode() Opcode        { return OpLoginAccept }
func (LoginDeny) Opcode() Opcode          { return OpLoginDeny }
func (RequestClientList) Opcode() Opcode  { return OpRequestClientList }
func (ClientList) Opcode() Opcode         { return OpClientList }
func (RequestGame) Opcode() Opcode        { return OpRequestGame }
func (DenyGame) Opcode() Opcode           { return OpDenyGame }
func (AbandonGame) Opcode() Opcode        { return OpAbandonGame }
func (StartGame) Opcode() Opcode          { return OpStartGame }
func (PlacePiece) Opcode() Opcode         { return OpPlacePiece }
func (Pass) Opcode() Opcode               { return OpPass }
func (Message) Opcode() Opcode            { return OpMessage }
