package exchange

import (
	"errors"

	"github.com/FerroO2000/staffetta/internal/wait"
)

var (
	// ErrAlert is returned by blocking operations when the component
	// they wait on has been alerted to shut down.
	ErrAlert = wait.ErrAlert

	// ErrTimeout is returned by bounded waits that expire before the
	// requested sequence becomes visible.
	ErrTimeout = wait.ErrTimeout

	// ErrInsufficientCapacity is returned by non-blocking claims when
	// the ring has no free slot.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrInvalidCapacity is returned when the requested ring capacity
	// is negative or exceeds the maximum.
	ErrInvalidCapacity = errors.New("invalid capacity")

	// ErrBatchTooLarge is returned when a batch claim asks for more
	// slots than the ring holds.
	ErrBatchTooLarge = errors.New("batch size exceeds ring capacity")

	// ErrInvalidBatchSize is returned when a batch claim asks for less
	// than one slot.
	ErrInvalidBatchSize = errors.New("batch size must be at least one")

	// ErrGatingSealed is returned when gating sequences are added
	// after the first claim.
	ErrGatingSealed = errors.New("gating sequences are sealed after the first claim")

	// ErrNoGatingSequences is returned by claims on a ring that has no
	// gating sequence registered and does not allow running ungated.
	ErrNoGatingSequences = errors.New("no gating sequences registered")
)
