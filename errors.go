package framegraph

import "errors"

// Declaration errors. These indicate caller bugs in the graph description
// and are never retried.
var (
	// ErrDuplicateName is returned when a pass or image name is declared twice.
	ErrDuplicateName = errors.New("framegraph: duplicate name")

	// ErrUnknownNode is returned when an edge, recorder registration, or
	// lookup references a pass or image that was never declared.
	ErrUnknownNode = errors.New("framegraph: unknown node")

	// ErrInvalidDescriptor is returned when an image descriptor fails
	// validation (empty name, zero extent, zero samples, or a resolve
	// target without a color attachment to pair with).
	ErrInvalidDescriptor = errors.New("framegraph: invalid descriptor")
)

// Compile errors. These abort Build before any frame renders.
var (
	// ErrCycle is returned by Build when the declared graph is not acyclic.
	// No GPU resources are allocated when Build fails with ErrCycle.
	ErrCycle = errors.New("framegraph: graph contains a cycle")

	// ErrDeviceResourceExhausted is returned when image allocation would
	// exceed the allocator's memory budget.
	ErrDeviceResourceExhausted = errors.New("framegraph: device resource budget exhausted")

	// ErrNoBackbufferPass is returned by InsertBackbufferImages when no
	// declared pass writes to the backbuffer family.
	ErrNoBackbufferPass = errors.New("framegraph: no pass writes to the backbuffer")
)

// Runtime errors.
var (
	// ErrNotCompiled is returned when executing or binding against a graph
	// that has not been built, or whose build has been destroyed.
	ErrNotCompiled = errors.New("framegraph: graph is not compiled")

	// ErrBackbufferCount is returned when a backbuffer index is out of
	// range, or a rebuild is given a different number of backbuffer images
	// than the previous build.
	ErrBackbufferCount = errors.New("framegraph: backbuffer image count mismatch")

	// ErrDeviceLost is returned when the device stops making progress
	// (a fence wait fails). This is fatal: the caller must tear down and
	// recreate the device.
	ErrDeviceLost = errors.New("framegraph: device lost")
)
