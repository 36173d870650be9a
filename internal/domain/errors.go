package domain

import (
	"errors"
	"fmt"
)

// ErrCancelled indicates a job or resource was stopped on request
var ErrCancelled = errors.New("cancelled")

// ErrDuplicate indicates a job with the same id is already active
var ErrDuplicate = errors.New("job already active")

// ErrNoResources indicates an attempt to enqueue a job with no resources
var ErrNoResources = errors.New("job has no resources")

// TransferError carries an engine-reported failure for one resource.
type TransferError struct {
	Resource *Resource
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.Resource.ClientID, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
