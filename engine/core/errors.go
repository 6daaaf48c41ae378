package core

import (
	"errors"
)

var (
	// ErrRegionFull is returned when a bump allocation would exceed its region capacity.
	ErrRegionFull = errors.New("gpu memory region exhausted")
	// ErrDeviceFaulted is returned when the native queue is in its sticky error state.
	ErrDeviceFaulted = errors.New("native device queue faulted")
	// ErrNoHandle is returned when a handle-table slot cannot be resolved.
	ErrNoHandle = errors.New("invalid or unallocated handle")
	ErrUnknown  = errors.New("unknown")
)
