package main

import "errors"

// Error classes surfaced by the surface pipeline. Callers wrap them with
// context and test with errors.Is.
var (
	// errConfiguration marks invalid setup: non-positive grid or table
	// parameters, no vessels, mismatched hull sizes. Fatal at startup.
	errConfiguration = errors.New("configuration error")

	// errResourceState marks use of a released or unallocated resource. It
	// indicates a lifecycle sequencing bug, not a recoverable condition.
	errResourceState = errors.New("resource state error")

	// errShortTrajectory is returned by the designated-length packer when a
	// vessel holds fewer samples than the shared stride.
	errShortTrajectory = errors.New("trajectory shorter than packed stride")
)
