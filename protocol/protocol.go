// Package protocol implements the binary frame format multiplexed over the
// dashboard's single duplex connection.
//
// Every WebSocket binary message carries exactly one frame: a fixed 22-byte
// header followed by the metadata block and the data block. The header says how
// long each block is, so the receiver never has to guess where one ends.
//
// Frame format:
//
//	0     3  4  5  6          10         14         18         22
//	┌─────┬──┬──┬──┬──────────┬──────────┬──────────┬──────────┬──────────┬────────┐
//	│magic│v │ty│fl│ streamID │ requestN │ metaLen  │ dataLen  │ metadata │  data  │
//	│ dsh │01│  │  │  uint32  │  uint32  │  uint32  │  uint32  │          │        │
//	└─────┴──┴──┴──┴──────────┴──────────┴──────────┴──────────┴──────────┴────────┘
//
// The stream ID is what lets many calls share one connection: the client picks
// a fresh odd ID per call and every frame belonging to that call carries it.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic bytes "dsh" identify a dashboard frame and reject anything else
// written to the socket (e.g. a text message from a misconfigured peer).
const (
	MagicNumber byte = 0x64 // 'd'
	MagicByte2  byte = 0x73 // 's'
	MagicByte3  byte = 0x68 // 'h'
	Version     byte = 0x01
	HeaderSize  int  = 22 // 3 (magic) + 1 (version) + 1 (type) + 1 (flags) + 4 (stream) + 4 (requestN) + 4 (metaLen) + 4 (dataLen)
)

// MaxRequestN asks the responder for an effectively unbounded number of replies.
const MaxRequestN uint32 = 1<<31 - 1

// MaxBlockLen bounds a single metadata or data block; larger lengths are treated as corruption.
const MaxBlockLen uint32 = 64 << 20

// FrameType distinguishes what a frame means for its stream.
type FrameType byte

const (
	FrameKeepalive       FrameType = 0x03 // Liveness probe, stream 0
	FrameRequestResponse FrameType = 0x04 // Open a single-reply stream
	FrameRequestStream   FrameType = 0x06 // Open a multi-reply stream
	FrameCancel          FrameType = 0x09 // Requester abandons a stream
	FramePayload         FrameType = 0x0A // Value and/or completion for a stream
	FrameError           FrameType = 0x0B // Terminal error for a stream; data is the message
)

func (t FrameType) String() string {
	switch t {
	case FrameKeepalive:
		return "KEEPALIVE"
	case FrameRequestResponse:
		return "REQUEST_RESPONSE"
	case FrameRequestStream:
		return "REQUEST_STREAM"
	case FrameCancel:
		return "CANCEL"
	case FramePayload:
		return "PAYLOAD"
	case FrameError:
		return "ERROR"
	}
	return fmt.Sprintf("FrameType(0x%02x)", byte(t))
}

func (t FrameType) valid() bool {
	switch t {
	case FrameKeepalive, FrameRequestResponse, FrameRequestStream, FrameCancel, FramePayload, FrameError:
		return true
	}
	return false
}

// Flags qualify a frame.
type Flags byte

const (
	FlagNext     Flags = 0x20 // PAYLOAD carries a value
	FlagComplete Flags = 0x40 // PAYLOAD ends the stream
	FlagRespond  Flags = 0x80 // KEEPALIVE expects an echo
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Header represents the fixed 22-byte frame header.
type Header struct {
	Type        FrameType
	Flags       Flags
	StreamID    uint32 // 0 for connection-level frames (keepalive)
	RequestN    uint32 // Initial demand on REQUEST_STREAM, zero otherwise
	MetadataLen uint32
	DataLen     uint32
}

// Frame is a decoded header with its two blocks.
type Frame struct {
	Header
	Metadata []byte
	Data     []byte
}

// Encode writes a complete frame to w. Lengths in h are overwritten from the blocks.
// The caller must serialize writers sharing one connection, otherwise frames interleave.
func Encode(w io.Writer, h *Header, metadata, data []byte) error {
	h.MetadataLen = uint32(len(metadata))
	h.DataLen = uint32(len(data))

	buf := make([]byte, HeaderSize, HeaderSize+len(metadata)+len(data))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.Type)
	buf[5] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[6:10], h.StreamID)
	binary.BigEndian.PutUint32(buf[10:14], h.RequestN)
	binary.BigEndian.PutUint32(buf[14:18], h.MetadataLen)
	binary.BigEndian.PutUint32(buf[18:22], h.DataLen)
	buf = append(buf, metadata...)
	buf = append(buf, data...)

	_, err := w.Write(buf)
	return err
}

// Decode reads one complete frame from r, validating magic, version and type.
func Decode(r io.Reader) (*Frame, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	ft := FrameType(headerBuf[4])
	if !ft.valid() {
		return nil, fmt.Errorf("unsupported frame type: 0x%02x", headerBuf[4])
	}

	f := &Frame{Header: Header{
		Type:        ft,
		Flags:       Flags(headerBuf[5]),
		StreamID:    binary.BigEndian.Uint32(headerBuf[6:10]),
		RequestN:    binary.BigEndian.Uint32(headerBuf[10:14]),
		MetadataLen: binary.BigEndian.Uint32(headerBuf[14:18]),
		DataLen:     binary.BigEndian.Uint32(headerBuf[18:22]),
	}}
	if f.MetadataLen > MaxBlockLen || f.DataLen > MaxBlockLen {
		return nil, fmt.Errorf("frame block too large: metadata=%d data=%d", f.MetadataLen, f.DataLen)
	}

	if f.MetadataLen > 0 {
		f.Metadata = make([]byte, f.MetadataLen)
		if _, err := io.ReadFull(r, f.Metadata); err != nil {
			return nil, err
		}
	}
	if f.DataLen > 0 {
		f.Data = make([]byte, f.DataLen)
		if _, err := io.ReadFull(r, f.Data); err != nil {
			return nil, err
		}
	}
	return f, nil
}
