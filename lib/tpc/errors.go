package tpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrUnknownOperation is returned by Participant.Commit when no ready entry
// exists for the operation. The participant does not reply in that case.
var ErrUnknownOperation = errors.New("tpc: no ready entry for operation")

// ReplicaError attributes a failure to one slave.
type ReplicaError struct {
	SlaveID uint64
	Err     error
}

func (e *ReplicaError) Error() string {
	return fmt.Sprintf("@%d=>%s", e.SlaveID, e.Err.Error())
}

func (e *ReplicaError) Unwrap() error {
	return e.Err
}

// formatReplicaErrors joins the replica errors line by line.
func formatReplicaErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}

// compositeError builds the error reported to a client when replicas failed.
// It returns nil when errs is empty.
func compositeError(errs []*ReplicaError) error {
	var result *multierror.Error
	for _, err := range errs {
		result = multierror.Append(result, err)
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = formatReplicaErrors
	return result.ErrorOrNil()
}
