package history

import (
	"errors"
	"fmt"
	"os"

	"github.com/umputun/backups/app/backup"
)

// storage errors
var (
	ErrNotFound   = errors.New("log location not found")
	ErrUnwritable = errors.New("log is not writable")
)

// File appends "<SUCCESS|FAILURE> <timestamp> <message>" lines to a text file.
// The file is opened per record, so every line is on disk before Append returns.
type File struct {
	Path string
}

// NewFile makes File logger for path, the file is created on first append
func NewFile(path string) *File {
	return &File{Path: path}
}

// Append writes a single outcome line
func (f *File) Append(o backup.Outcome) error {
	fh, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // log file from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, f.Path)
		}
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if _, err = fh.WriteString(o.String() + "\n"); err != nil {
		_ = fh.Close()
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	if err = fh.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnwritable, err)
	}
	return nil
}

func (f *File) String() string { return f.Path }
