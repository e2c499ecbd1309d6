package middleman

import (
	"errors"
	"fmt"
)

// ErrNonProductive is matched (via errors.Is) by every error raised
// because a transformer or middleman produced no PDU.
var ErrNonProductive = errors.New("middleman produced no PDU")

// NonProductiveError reports a transformer that returned nil without
// an error.  This is a programming error in the middleman, so the relay
// stops instead of forwarding an empty placeholder.
type NonProductiveError struct {
	Direction Direction
}

func (e *NonProductiveError) Error() string {
	return fmt.Sprintf("%s transformer: %v", e.Direction, ErrNonProductive)
}

// Is makes errors.Is(err, ErrNonProductive) hold.
func (e *NonProductiveError) Is(target error) bool { return target == ErrNonProductive }

// StageError records which member of a composed chain failed.  Index 0
// is the member nearest the reader.
type StageError struct {
	Index     int
	Direction Direction
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("middleman %d (%s): %v", e.Index, e.Direction, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
