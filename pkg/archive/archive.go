// Package archive copies processed outputs to long-term storage.
package archive

import (
	"context"
	"path"
	"path/filepath"
)

// Archiver uploads a processed file and returns the key it was stored under.
type Archiver interface {
	Archive(ctx context.Context, jobID, localPath string) (string, error)
}

// Noop discards archive requests. It is used when archiving is disabled.
type Noop struct{}

func (Noop) Archive(context.Context, string, string) (string, error) {
	return "", nil
}

// ObjectKey builds "<prefix><jobID>/<file name>".
func ObjectKey(prefix, jobID, localPath string) string {
	return prefix + path.Join(jobID, filepath.Base(localPath))
}
