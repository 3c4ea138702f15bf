// Package processor turns a stored upload into a processed output file.
package processor

import (
	"context"
	"errors"

	"github.com/marmos91/vidforge/pkg/protocol"
)

// ErrProcessingFailed wraps every failure to produce an output file.
var ErrProcessingFailed = errors.New("processing failed")

// Processor applies an operation to a stored file.
//
// Process returns the path of a newly created output file, which the caller
// owns. On failure no output file is left behind and the returned error
// wraps ErrProcessingFailed.
type Processor interface {
	Process(ctx context.Context, inputPath string, op protocol.Operation) (string, error)
}
