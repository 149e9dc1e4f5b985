package history

import (
	"errors"

	"github.com/umputun/backups/app/backup"
)

// Multi sends every outcome to all loggers, a failing logger doesn't stop the rest
type Multi []backup.Logger

// Append calls all loggers and joins their errors
func (m Multi) Append(o backup.Outcome) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Append(o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
