package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// OperationKind names a processing operation in request metadata.
type OperationKind string

const (
	OpCompress          OperationKind = "compress"
	OpResize            OperationKind = "resize"
	OpChangeAspectRatio OperationKind = "change_aspect_ratio"
	OpConvertToAudio    OperationKind = "convert_to_audio"
	OpCreateClip        OperationKind = "create_clip"
)

// Clip output formats accepted by create_clip.
const (
	ClipFormatGIF  = "gif"
	ClipFormatWebM = "webm"
)

// Operation is a validated processing request. The concrete type determines
// which fields are present: Compress, Resize, ChangeAspectRatio,
// ConvertToAudio or CreateClip.
type Operation interface {
	Kind() OperationKind

	// OutputMediaType returns the extension of the file the operation
	// produces when applied to an input of the given media type.
	OutputMediaType(input string) string

	metadata() operationMetadata
}

// Compress re-encodes the video with a smaller bitrate.
type Compress struct{}

// Resize scales the video to exactly Width x Height pixels.
type Resize struct {
	Width  int
	Height int
}

// ChangeAspectRatio sets the display aspect ratio, e.g. "16:9".
type ChangeAspectRatio struct {
	AspectRatio string
}

// ConvertToAudio extracts the audio track as mp3.
type ConvertToAudio struct{}

// CreateClip cuts [Start, End) out of the video into a gif or webm file.
type CreateClip struct {
	Start  time.Duration
	End    time.Duration
	Format string
}

func (Compress) Kind() OperationKind          { return OpCompress }
func (Resize) Kind() OperationKind            { return OpResize }
func (ChangeAspectRatio) Kind() OperationKind { return OpChangeAspectRatio }
func (ConvertToAudio) Kind() OperationKind    { return OpConvertToAudio }
func (CreateClip) Kind() OperationKind        { return OpCreateClip }

func (Compress) OutputMediaType(input string) string          { return input }
func (Resize) OutputMediaType(input string) string            { return input }
func (ChangeAspectRatio) OutputMediaType(input string) string { return input }
func (ConvertToAudio) OutputMediaType(string) string          { return "mp3" }
func (c CreateClip) OutputMediaType(string) string            { return c.Format }

// operationMetadata is the JSON shape of request metadata.
type operationMetadata struct {
	Operation   OperationKind   `json:"operation"`
	Width       *int            `json:"width,omitempty"`
	Height      *int            `json:"height,omitempty"`
	AspectRatio string          `json:"aspect_ratio,omitempty"`
	StartTime   json.RawMessage `json:"start_time,omitempty"`
	EndTime     json.RawMessage `json:"end_time,omitempty"`
	Format      string          `json:"format,omitempty"`
}

func (Compress) metadata() operationMetadata { return operationMetadata{Operation: OpCompress} }

func (r Resize) metadata() operationMetadata {
	return operationMetadata{Operation: OpResize, Width: &r.Width, Height: &r.Height}
}

func (c ChangeAspectRatio) metadata() operationMetadata {
	return operationMetadata{Operation: OpChangeAspectRatio, AspectRatio: c.AspectRatio}
}

func (ConvertToAudio) metadata() operationMetadata {
	return operationMetadata{Operation: OpConvertToAudio}
}

func (c CreateClip) metadata() operationMetadata {
	return operationMetadata{
		Operation: OpCreateClip,
		StartTime: json.RawMessage(strconv.FormatFloat(c.Start.Seconds(), 'f', -1, 64)),
		EndTime:   json.RawMessage(strconv.FormatFloat(c.End.Seconds(), 'f', -1, 64)),
		Format:    c.Format,
	}
}

// MarshalOperation renders op as request metadata JSON.
func MarshalOperation(op Operation) (json.RawMessage, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", ErrProtocol)
	}
	return json.Marshal(op.metadata())
}

// ParseOperation decodes and validates request metadata.
//
// Every problem, from malformed JSON to a missing or invalid per-operation
// field, is reported as an error wrapping ErrProtocol.
func ParseOperation(raw []byte) (Operation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrProtocol)
	}

	var meta operationMetadata
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata JSON: %v", ErrProtocol, err)
	}

	switch meta.Operation {
	case OpCompress:
		return Compress{}, nil

	case OpResize:
		if meta.Width == nil || meta.Height == nil {
			return nil, fmt.Errorf("%w: resize requires width and height", ErrProtocol)
		}
		if *meta.Width <= 0 || *meta.Height <= 0 {
			return nil, fmt.Errorf("%w: resize dimensions must be positive, got %dx%d", ErrProtocol, *meta.Width, *meta.Height)
		}
		return Resize{Width: *meta.Width, Height: *meta.Height}, nil

	case OpChangeAspectRatio:
		if err := validateAspectRatio(meta.AspectRatio); err != nil {
			return nil, err
		}
		return ChangeAspectRatio{AspectRatio: meta.AspectRatio}, nil

	case OpConvertToAudio:
		return ConvertToAudio{}, nil

	case OpCreateClip:
		return parseClip(meta)

	case "":
		return nil, fmt.Errorf("%w: metadata has no operation", ErrProtocol)

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrProtocol, meta.Operation)
	}
}

func parseClip(meta operationMetadata) (Operation, error) {
	if len(meta.StartTime) == 0 || len(meta.EndTime) == 0 {
		return nil, fmt.Errorf("%w: create_clip requires start_time and end_time", ErrProtocol)
	}

	start, err := parseTimestamp(meta.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrProtocol, err)
	}
	end, err := parseTimestamp(meta.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrProtocol, err)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: start_time must be before end_time", ErrProtocol)
	}

	format := strings.ToLower(meta.Format)
	if format != ClipFormatGIF && format != ClipFormatWebM {
		return nil, fmt.Errorf("%w: clip format must be %q or %q, got %q", ErrProtocol, ClipFormatGIF, ClipFormatWebM, meta.Format)
	}

	return CreateClip{Start: start, End: end, Format: format}, nil
}

// maxTimestampSeconds is the largest timestamp a time.Duration can hold.
const maxTimestampSeconds = float64(math.MaxInt64 / int64(time.Second))

// parseTimestamp accepts a JSON number of seconds, or a string holding
// either seconds or [HH:]MM:SS[.fraction].
func parseTimestamp(raw json.RawMessage) (time.Duration, error) {
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	} else {
		text = string(raw)
	}
	text = strings.TrimSpace(text)

	var seconds float64
	if strings.Contains(text, ":") {
		parts := strings.Split(text, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid timestamp %q", text)
		}
		for i, part := range parts {
			value, err := strconv.ParseFloat(part, 64)
			if err != nil || value < 0 {
				return 0, fmt.Errorf("invalid timestamp %q", text)
			}
			// only the seconds field may carry a fraction
			if i < len(parts)-1 && value != math.Trunc(value) {
				return 0, fmt.Errorf("invalid timestamp %q", text)
			}
			seconds = seconds*60 + value
		}
	} else {
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", text)
		}
		seconds = value
	}

	if seconds < 0 || seconds > maxTimestampSeconds || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("timestamp %q out of range", text)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func validateAspectRatio(ratio string) error {
	w, h, ok := strings.Cut(ratio, ":")
	if !ok {
		return fmt.Errorf("%w: aspect_ratio must look like W:H, got %q", ErrProtocol, ratio)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return fmt.Errorf("%w: aspect_ratio must look like W:H, got %q", ErrProtocol, ratio)
	}
	return nil
}
