package trackline

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds returned by the session engine. Callers match them with
// errors.Is; the returned errors carry additional context.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrUnknownTrack     = errors.New("unknown track")
	ErrUnknownClip      = errors.New("unknown clip")
	ErrSessionDestroyed = errors.New("session destroyed")
	ErrJobInProgress    = errors.New("export job in progress")
	ErrEngineFailure    = errors.New("engine failure")

	// ErrInvalidRange is an ErrInvalidParameter for a time window that does
	// not have a positive length or starts before zero.
	ErrInvalidRange = fmt.Errorf("%w: invalid range", ErrInvalidParameter)
)
