package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	// ErrRegistryMiss is returned when progress/stop/pause/resume
	// references an unknown job id. HTTP 404 at the API layer.
	ErrRegistryMiss = errors.New("job not found")
)

// registryMissError returns a wrapped error for an unknown job id.
func registryMissError(id string) error {
	return fmt.Errorf("%w: %s", ErrRegistryMiss, id)
}
