// Package protocol implements the TLV wire frame exchanged on every backend
// TCP session.
//
// Wire layout:
//
//	| Tag (4B, big-endian) | Length (4B, big-endian) | Content (Length bytes) |
//
// The length field lets a receiver split the byte stream into frames: read the
// 8-byte header, read Length bytes, repeat. Both header fields are network
// byte order. CHAT_MSG payloads carry a big-endian 8-byte uid prefix.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Tag identifies the frame type.
type Tag uint32

const (
	TagDebug        Tag = 0 // payload logged verbatim, debugging aid
	TagVerify       Tag = 1 // UTF-8 JSON {"uid": <u64>, "token": <string>}
	TagVerifyDone   Tag = 2 // UTF-8 status string, handshake acknowledgment
	TagChatMsg      Tag = 3 // [to_uid 8B BE][content]
	TagChatMsgToCli Tag = 4 // [from_uid 8B BE][content]
	TagGroupChatMsg Tag = 5 // reserved
	TagPing         Tag = 6 // keepalive, empty payload
)

func (t Tag) String() string {
	switch t {
	case TagDebug:
		return "DEBUG"
	case TagVerify:
		return "VERIFY"
	case TagVerifyDone:
		return "VERIFY_DONE"
	case TagChatMsg:
		return "CHAT_MSG"
	case TagChatMsgToCli:
		return "CHAT_MSG_TOCLI"
	case TagGroupChatMsg:
		return "GROUP_CHAT_MSG"
	case TagPing:
		return "PING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// HeaderSize is the fixed frame header length: 4B tag + 4B length.
const HeaderSize = 8

// MaxContentLen bounds a single frame's payload. Anything larger is treated
// as a protocol violation and the session is torn down.
const MaxContentLen = 1024 * 1024

// UIDLen is the length of the uid prefix inside CHAT_MSG / CHAT_MSG_TOCLI.
const UIDLen = 8

var (
	// ErrConnClosed reports a connection that closed cleanly on a frame
	// boundary, before the first header byte arrived. Not a protocol error.
	ErrConnClosed = errors.New("protocol: connection closed")

	// ErrFrameTooLarge reports a header advertising more than MaxContentLen
	// payload bytes.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds max content length")

	// ErrProtocol reports a stream that ended mid-frame.
	ErrProtocol = errors.New("protocol: truncated frame")
)

// Frame is one decoded wire unit.
type Frame struct {
	Tag     Tag
	Payload []byte
}

// ReadFrame reads exactly one frame from r.
//
// A clean EOF before any header byte maps to ErrConnClosed so callers can
// treat remote shutdown as a normal event. EOF anywhere after that is
// ErrProtocol: the peer violated the framing contract.
func ReadFrame(r io.Reader) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, ErrConnClosed
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: short header read", ErrProtocol)
		}
		return nil, err
	}

	tag := Tag(binary.BigEndian.Uint32(header[0:4]))
	length := binary.BigEndian.Uint32(header[4:8])
	if length > MaxContentLen {
		return nil, fmt.Errorf("%w: advertised %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("%w: short payload read", ErrProtocol)
			}
			return nil, err
		}
	}

	return &Frame{Tag: tag, Payload: payload}, nil
}

// EncodeFrame serializes (tag, payload) into wire bytes.
func EncodeFrame(tag Tag, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(tag))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Encode serializes the frame into wire bytes.
func (f *Frame) Encode() []byte {
	return EncodeFrame(f.Tag, f.Payload)
}

// WriteFrame writes one complete frame to w.
func WriteFrame(w io.Writer, f *Frame) error {
	_, err := w.Write(f.Encode())
	return err
}

// VerifyRequest is the VERIFY payload: the uid the client claims to be plus
// the login token the gateway issued for it.
type VerifyRequest struct {
	UID   uint64 `json:"uid"`
	Token string `json:"token"`
}

// EncodeVerify builds a VERIFY payload.
func EncodeVerify(uid uint64, token string) []byte {
	buf, _ := json.Marshal(VerifyRequest{UID: uid, Token: token})
	return buf
}

// DecodeVerify parses a VERIFY payload. A body that is not the expected JSON
// object is a protocol violation.
func DecodeVerify(payload []byte) (*VerifyRequest, error) {
	var req VerifyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: malformed verify payload: %v", ErrProtocol, err)
	}
	if req.Token == "" {
		return nil, fmt.Errorf("%w: verify payload without token", ErrProtocol)
	}
	return &req, nil
}

// ChatPayload builds a CHAT_MSG / CHAT_MSG_TOCLI payload: 8B BE uid prefix
// followed by the content bytes.
func ChatPayload(uid uint64, content []byte) []byte {
	buf := make([]byte, UIDLen+len(content))
	binary.BigEndian.PutUint64(buf[:UIDLen], uid)
	copy(buf[UIDLen:], content)
	return buf
}

// SplitChatPayload extracts the uid prefix and content from a CHAT_MSG /
// CHAT_MSG_TOCLI payload.
func SplitChatPayload(payload []byte) (uid uint64, content []byte, err error) {
	if len(payload) < UIDLen {
		return 0, nil, fmt.Errorf("%w: chat payload of %d bytes", ErrProtocol, len(payload))
	}
	return binary.BigEndian.Uint64(payload[:UIDLen]), payload[UIDLen:], nil
}
