package wire

import (
	"fmt"

	"github.com/danmuck/interactivectl/internal/update"
	"google.golang.org/protobuf/encoding/protowire"
)

// Encode writes p as id prefix plus body. ProgressUpdate bodies are validated first.
func Encode(p Packet) ([]byte, error) {
	out := protowire.AppendVarint(nil, uint64(p.PacketID()))
	switch pkt := p.(type) {
	case Handshake:
		out = appendVarintField(out, 1, uint64(pkt.Channel))
		out = appendStringField(out, 2, pkt.StreamKey)
	case HandshakeACK:
	case Report:
		out = appendReport(out, pkt)
	case Error:
		out = appendStringField(out, 1, pkt.Message)
	case ProgressUpdate:
		v, err := update.Validate(pkt.Update)
		if err != nil {
			return nil, err
		}
		out = appendProgress(out, v.Update())
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrUnknownPacket, p)
	}
	return out, nil
}

// EncodeUpdate encodes an already validated update as a progress_update packet.
func EncodeUpdate(v update.Validated) []byte {
	out := protowire.AppendVarint(nil, uint64(IDProgressUpdate))
	return appendProgress(out, v.Update())
}

// PeekID reads the packet id without decoding the body.
func PeekID(data []byte) (ID, error) {
	if len(data) == 0 {
		return 0, ErrEmpty
	}
	raw, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, fmt.Errorf("%w: packet id: %v", ErrMalformed, protowire.ParseError(n))
	}
	return ID(raw), nil
}

// Decode parses one packet. Unknown ids return ErrUnknownPacket with the id.
func Decode(data []byte) (Packet, error) {
	id, err := PeekID(data)
	if err != nil {
		return nil, err
	}
	_, n := protowire.ConsumeVarint(data)
	body := data[n:]

	switch id {
	case IDHandshake:
		return decodeHandshake(body)
	case IDHandshakeACK:
		return HandshakeACK{}, nil
	case IDReport:
		return decodeReport(body)
	case IDError:
		return decodeError(body)
	case IDProgressUpdate:
		return decodeProgress(body)
	default:
		return nil, fmt.Errorf("%w: id=%d", ErrUnknownPacket, uint64(id))
	}
}

func decodeHandshake(body []byte) (Handshake, error) {
	var out Handshake
	r := newFieldReader("handshake", body)
	for {
		ok, err := r.Next()
		if err != nil {
			return Handshake{}, err
		}
		if !ok {
			return out, nil
		}
		switch r.num {
		case 1:
			v, err := r.Varint()
			if err != nil {
				return Handshake{}, err
			}
			out.Channel = uint32(v)
		case 2:
			if out.StreamKey, err = r.Text(); err != nil {
				return Handshake{}, err
			}
		default:
			if err := r.Skip(); err != nil {
				return Handshake{}, err
			}
		}
	}
}

func decodeError(body []byte) (Error, error) {
	var out Error
	r := newFieldReader("error", body)
	for {
		ok, err := r.Next()
		if err != nil {
			return Error{}, err
		}
		if !ok {
			return out, nil
		}
		if r.num == 1 {
			if out.Message, err = r.Text(); err != nil {
				return Error{}, err
			}
			continue
		}
		if err := r.Skip(); err != nil {
			return Error{}, err
		}
	}
}
