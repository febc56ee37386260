// Package backup moves the full-tree JSON blob between the server and a
// remote store. Every remote keys the backup by one fixed filename.
package backup

import (
	"context"
	"errors"
)

// BackupFilename is the single object name used on every remote.
const BackupFilename = "scribe-backup.json"

// ErrNoBackup is returned by Download when the remote holds no backup.
var ErrNoBackup = errors.New("no backup found on remote")

// Remote is a storage target for the serialized file tree.
type Remote interface {
	Name() string
	Upload(ctx context.Context, data []byte) error
	Download(ctx context.Context) ([]byte, error)
}
