package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/udisondev/reversi/internal/board"
)

// Encode serialises p into a fresh frame, length header included.
// Returns ErrPacketTooLarge when the frame would exceed MaxPacketSize and
// an error for packets that must never hit the wire (Disconnect).
func Encode(p Packet) ([]byte, error) {
	w := getWriter()
	defer w.put()

	// Length placeholder, patched below.
	w.WriteUint16(0)
	w.WriteByte(byte(p.Opcode()))

	switch v := p.(type) {
	case ConnectSuccess:
		w.WriteUint64(uint64(v.ID))
	case Disconnect:
		return nil, errors.New("encode: Disconnect is local-only")
	case Login:
		w.WriteString(v.Name)
	case LoginAccept, RequestClientList:
		// no fields
	case LoginDeny:
		w.WriteString(v.Reason)
	case ClientList:
		w.WriteUint16(uint16(len(v.Clients)))
		for _, c := range v.Clients {
			w.WriteUint64(uint64(c.ID))
			w.WriteString(c.Name)
		}
	case RequestGame:
		w.WriteUint64(uint64(v.Opponent))
	case DenyGame:
		w.WriteUint64(uint64(v.Opponent))
	case AbandonGame:
		w.WriteUint64(uint64(v.Opponent))
	case StartGame:
		w.WriteUint64(uint64(v.Opponent))
		w.WriteByte(byte(v.Color))
	case PlacePiece:
		w.WriteUint64(uint64(v.Opponent))
		w.WriteByte(v.X)
		w.WriteByte(v.Y)
	case Pass:
		w.WriteUint64(uint64(v.Opponent))
	case Message:
		w.WriteUint64(uint64(v.Client))
		w.WriteString(v.Text)
	default:
		return nil, fmt.Errorf("encode: unknown packet type %T", p)
	}

	if w.Len() > MaxPacketSize {
		return nil, fmt.Errorf("encode %T (%d bytes): %w", p, w.Len(), ErrPacketTooLarge)
	}

	frame := make([]byte, w.Len())
	copy(frame, w.Bytes())
	binary.LittleEndian.PutUint16(frame[:HeaderSize], uint16(len(frame)))
	return frame, nil
}

// Decode parses one frame payload (opcode + fields, header already
// stripped). Every failure wraps ErrDecode.
func Decode(data []byte) (Packet, error) {
	r := NewReader(data)

	op, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	p, err := decodeBody(Opcode(op), r)
	if err != nil {
		return nil, fmt.Errorf("%w: opcode 0x%02X: %v", ErrDecode, op, err)
	}
	if r.Remaining() > 0 {
		return nil, fmt.Errorf("%w: opcode 0x%02X: %d trailing bytes", ErrDecode, op, r.Remaining())
	}
	return p, nil
}

func decodeBody(op Opcode, r *Reader) (Packet, error) {
	switch op {
	case OpConnectSuccess:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return ConnectSuccess{ID: ClientID(id)}, nil
	case OpLogin:
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return Login{Name: name}, nil
	case OpLoginAccept:
		return LoginAccept{}, nil
	case OpLoginDeny:
		reason, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return LoginDeny{Reason: reason}, nil
	case OpRequestClientList:
		return RequestClientList{}, nil
	case OpClientList:
		count, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		list := ClientList{Clients: make([]ClientEntry, 0, count)}
		for range count {
			id, err := r.ReadUint64()
			if err != nil {
				return nil, err
			}
			name, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			list.Clients = append(list.Clients, ClientEntry{ID: ClientID(id), Name: name})
		}
		return list, nil
	case OpRequestGame:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return RequestGame{Opponent: ClientID(id)}, nil
	case OpDenyGame:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return DenyGame{Opponent: ClientID(id)}, nil
	case OpAbandonGame:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return AbandonGame{Opponent: ClientID(id)}, nil
	case OpStartGame:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		color, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if color > 1 {
			return nil, fmt.Errorf("invalid piece %d", color)
		}
		return StartGame{Opponent: ClientID(id), Color: board.Piece(color)}, nil
	case OpPlacePiece:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		x, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		y, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return PlacePiece{Opponent: ClientID(id), X: x, Y: y}, nil
	case OpPass:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return Pass{Opponent: ClientID(id)}, nil
	case OpMessage:
		id, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		text, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return Message{Client: ClientID(id), Text: text}, nil
	default:
		return nil, errors.New("unknown opcode")
	}
}

// WritePacket encodes p and writes the complete frame to w.
func WritePacket(w io.Writer, p Packet) error {
	frame, err := Encode(p)
	if err != nil {
		return fmt.Errorf("encoding packet: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing packet: %w", err)
	}
	return nil
}

// ReadPacket reads one frame from r into buf and decodes it. buf must hold
// at least MaxPacketSize bytes; callers own it so reader loops can reuse a
// single buffer. A closed connection yields ErrClosed.
func ReadPacket(r io.Reader, buf []byte) (Packet, error) {
	if len(buf) < MaxPacketSize {
		return nil, fmt.Errorf("read packet: buffer too small (need %d, have %d)", MaxPacketSize, len(buf))
	}

	header := buf[:HeaderSize]
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("reading packet header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header))
	if totalLen <= HeaderSize {
		return nil, fmt.Errorf("%w: invalid frame length %d", ErrDecode, totalLen)
	}
	if totalLen > MaxPacketSize {
		return nil, fmt.Errorf("%w: frame length %d exceeds bound %d", ErrDecode, totalLen, MaxPacketSize)
	}

	payload := buf[HeaderSize:totalLen]
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("reading packet payload: %w", err)
	}

	return Decode(payload)
}
