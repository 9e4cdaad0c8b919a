package history

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCorrupt marks a ledger document that cannot be decoded.
	ErrCorrupt = errors.New("corrupt history document")

	// ErrInvalidImport is wrapped by every ValidationError.
	ErrInvalidImport = errors.New("invalid history import")
)

// ValidationError rejects an import as a whole.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	const shown = 5
	problems := e.Problems
	suffix := ""
	if len(problems) > shown {
		suffix = fmt.Sprintf(" (and %d more)", len(problems)-shown)
		problems = problems[:shown]
	}
	return fmt.Sprintf("%s %s: %s%s", ErrInvalidImport, e.Path, strings.Join(problems, "; "), suffix)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidImport
}
