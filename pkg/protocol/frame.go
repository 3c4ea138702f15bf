// Package protocol implements the vidforge wire format.
//
// Every exchange on a connection is a single frame in each direction. A frame
// is an 8-byte big-endian header followed by three length-prefixed sections:
//
//	offset 0, len 2: metadataSize   (u16)
//	offset 2, len 1: mediaTypeSize  (u8)
//	offset 3, len 5: payloadSize    (u40)
//	offset 8:        metadata (UTF-8 JSON object)
//	then:            media type (UTF-8 file extension, no leading dot)
//	then:            payload (raw bytes)
//
// Requests and responses share the same shape. A successful response carries
// an empty metadata object; a failure response carries an error object in the
// metadata section and empty media type and payload sections.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed size of a frame header in bytes.
	HeaderSize = 8

	// MaxMetadataSize is the largest metadata section a u16 can describe.
	MaxMetadataSize = 1<<16 - 1

	// MaxMediaTypeSize is the largest media type section a u8 can describe.
	MaxMediaTypeSize = 1<<8 - 1

	// MaxPayloadSize is the largest payload a u40 can describe (1 TiB - 1).
	MaxPayloadSize = 1<<40 - 1
)

// emptyMetadata is the metadata section of every Result frame.
var emptyMetadata = []byte("{}")

// Header is the decoded fixed-size prefix of a frame.
type Header struct {
	MetadataSize  uint16
	MediaTypeSize uint8
	PayloadSize   uint64
}

// Encode writes the header into its 8-byte wire representation.
//
// Returns ErrProtocol if PayloadSize does not fit in 40 bits.
func (h Header) Encode() ([HeaderSize]byte, error) {
	var buf [HeaderSize]byte
	if h.PayloadSize > MaxPayloadSize {
		return buf, fmt.Errorf("%w: payload size %d exceeds %d", ErrProtocol, h.PayloadSize, uint64(MaxPayloadSize))
	}

	binary.BigEndian.PutUint16(buf[0:2], h.MetadataSize)
	buf[2] = h.MediaTypeSize

	// u40: the low five bytes of a big-endian u64
	var wide [8]byte
	binary.BigEndian.PutUint64(wide[:], h.PayloadSize)
	copy(buf[3:8], wide[3:8])

	return buf, nil
}

// DecodeHeader parses an 8-byte header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, need %d", ErrTruncatedFrame, len(buf), HeaderSize)
	}

	var wide [8]byte
	copy(wide[3:8], buf[3:8])

	return Header{
		MetadataSize:  binary.BigEndian.Uint16(buf[0:2]),
		MediaTypeSize: buf[2],
		PayloadSize:   binary.BigEndian.Uint64(wide[:]),
	}, nil
}

// Frame is one complete header plus its three sections.
type Frame struct {
	Metadata  json.RawMessage
	MediaType string
	Payload   []byte
}

// Header computes the header describing f.
func (f *Frame) Header() (Header, error) {
	if len(f.Metadata) > MaxMetadataSize {
		return Header{}, fmt.Errorf("%w: metadata is %d bytes, max %d", ErrProtocol, len(f.Metadata), MaxMetadataSize)
	}
	if len(f.MediaType) > MaxMediaTypeSize {
		return Header{}, fmt.Errorf("%w: media type is %d bytes, max %d", ErrProtocol, len(f.MediaType), MaxMediaTypeSize)
	}
	if uint64(len(f.Payload)) > MaxPayloadSize {
		return Header{}, fmt.Errorf("%w: payload is %d bytes, max %d", ErrProtocol, len(f.Payload), uint64(MaxPayloadSize))
	}

	return Header{
		MetadataSize:  uint16(len(f.Metadata)),
		MediaTypeSize: uint8(len(f.MediaType)),
		PayloadSize:   uint64(len(f.Payload)),
	}, nil
}

// IsFailure reports whether the frame carries an error object.
func (f *Frame) IsFailure() bool {
	_, ok := f.Failure()
	return ok
}

// Failure extracts the error object of a failure frame.
func (f *Frame) Failure() (*Failure, bool) {
	if len(f.Metadata) == 0 {
		return nil, false
	}

	var envelope failureEnvelope
	if err := json.Unmarshal(f.Metadata, &envelope); err != nil || envelope.Error == nil {
		return nil, false
	}
	return envelope.Error, true
}

// NewResultFrame builds a success response.
func NewResultFrame(mediaType string, payload []byte) *Frame {
	return &Frame{
		Metadata:  append(json.RawMessage(nil), emptyMetadata...),
		MediaType: mediaType,
		Payload:   payload,
	}
}

// NewFailureFrame builds a failure response. Media type and payload are always empty.
func NewFailureFrame(failure *Failure) (*Frame, error) {
	metadata, err := json.Marshal(failureEnvelope{Error: failure})
	if err != nil {
		return nil, fmt.Errorf("encode failure metadata: %w", err)
	}
	return &Frame{Metadata: metadata}, nil
}

// WriteFrame writes header and sections of f to w.
//
// The header and the two small sections are coalesced into one write so a
// failure response reaches the peer in a single segment.
func WriteFrame(w io.Writer, f *Frame) error {
	header, err := f.Header()
	if err != nil {
		return err
	}

	encoded, err := header.Encode()
	if err != nil {
		return err
	}

	prefix := make([]byte, 0, HeaderSize+len(f.Metadata)+len(f.MediaType))
	prefix = append(prefix, encoded[:]...)
	prefix = append(prefix, f.Metadata...)
	prefix = append(prefix, f.MediaType...)

	if _, err := w.Write(prefix); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadHeader reads and decodes exactly one header from r.
func ReadHeader(r io.Reader) (Header, error) {
	buf, err := ReadSection(r, HeaderSize)
	if err != nil {
		return Header{}, err
	}
	return DecodeHeader(buf)
}

// ReadSection reads exactly n bytes from r.
//
// A peer that closes before n bytes arrive yields ErrTruncatedFrame; the
// partially read bytes are discarded. Other I/O errors (timeouts, resets)
// are returned wrapped so callers can still inspect them.
func ReadSection(r io.Reader, n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedFrame, read, n)
		}
		return nil, fmt.Errorf("read %d bytes: %w", n, err)
	}
	return buf, nil
}

// Discard consumes exactly n bytes from r without retaining them.
func Discard(r io.Reader, n uint64) error {
	if n == 0 {
		return nil
	}

	copied, err := io.CopyN(io.Discard, r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: discarded %d of %d bytes", ErrTruncatedFrame, copied, n)
		}
		return fmt.Errorf("discard %d bytes: %w", n, err)
	}
	return nil
}

// ReadFrame reads one complete frame from r, rejecting payloads larger than maxPayload.
// A maxPayload of zero means only the u40 ceiling applies.
func ReadFrame(r io.Reader, maxPayload uint64) (*Frame, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	if maxPayload > 0 && header.PayloadSize > maxPayload {
		return nil, fmt.Errorf("%w: payload size %d exceeds limit %d", ErrProtocol, header.PayloadSize, maxPayload)
	}

	metadata, err := ReadSection(r, uint64(header.MetadataSize))
	if err != nil {
		return nil, err
	}
	mediaType, err := ReadSection(r, uint64(header.MediaTypeSize))
	if err != nil {
		return nil, err
	}
	payload, err := ReadSection(r, header.PayloadSize)
	if err != nil {
		return nil, err
	}

	return &Frame{
		Metadata:  metadata,
		MediaType: string(mediaType),
		Payload:   payload,
	}, nil
}
