package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the codec.
var (
	// ErrTruncatedFrame indicates the peer closed the connection before a
	// section was fully received.
	ErrTruncatedFrame = errors.New("truncated frame")

	// ErrProtocol indicates malformed content: invalid JSON, an unknown
	// operation or media type, or a header value out of range.
	ErrProtocol = errors.New("protocol error")
)

// Code is a numeric error code carried in failure responses.
type Code int

const (
	CodeProtocolError    Code = 1001
	CodeStorageFull      Code = 1002
	CodeReceiveFailed    Code = 1003
	CodeSaveFailed       Code = 1004
	CodeProcessingFailed Code = 1005
	CodeUnexpectedError  Code = 5000
)

// String returns a short name for the code, used in logs and metric labels.
func (c Code) String() string {
	switch c {
	case CodeProtocolError:
		return "protocol_error"
	case CodeStorageFull:
		return "storage_full"
	case CodeReceiveFailed:
		return "receive_failed"
	case CodeSaveFailed:
		return "save_failed"
	case CodeProcessingFailed:
		return "processing_failed"
	case CodeUnexpectedError:
		return "unexpected_error"
	default:
		return fmt.Sprintf("code_%d", int(c))
	}
}

// Failure is the error object framed in a failure response.
//
// Failure implements error so pipeline stages can return it directly and
// callers can recover it with errors.As.
type Failure struct {
	Code        Code   `json:"code"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
}

type failureEnvelope struct {
	Error *Failure `json:"error"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%d %s: %s", int(f.Code), f.Code, f.Description)
}

// NewFailure creates a Failure with the standard solution text for code.
func NewFailure(code Code, description string) *Failure {
	return &Failure{
		Code:        code,
		Description: description,
		Solution:    solutionFor(code),
	}
}

// ProtocolFailure is shorthand for a 1001 failure.
func ProtocolFailure(format string, args ...any) *Failure {
	return NewFailure(CodeProtocolError, fmt.Sprintf(format, args...))
}

// AsFailure converts any error into a Failure.
//
// A Failure anywhere in the chain is returned as is. ErrTruncatedFrame and
// ErrProtocol map to 1001. Everything else becomes a 5000 unexpected error
// whose description hides internal details from the peer.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	switch {
	case errors.Is(err, ErrTruncatedFrame):
		return NewFailure(CodeProtocolError, "Connection closed before the request was fully received")
	case errors.Is(err, ErrProtocol):
		return NewFailure(CodeProtocolError, err.Error())
	default:
		return NewFailure(CodeUnexpectedError, "An unexpected error occurred while handling the request")
	}
}

func solutionFor(code Code) string {
	switch code {
	case CodeProtocolError:
		return "Check the request header, metadata JSON and media type, then retry"
	case CodeStorageFull:
		return "Retry later or upload a smaller file"
	case CodeReceiveFailed:
		return "Check the network connection and resend the whole file"
	case CodeSaveFailed:
		return "Retry later; if the problem persists contact the server administrator"
	case CodeProcessingFailed:
		return "Verify the file is a valid video and the operation options are correct"
	default:
		return "Retry the request; if the problem persists contact the server administrator"
	}
}
