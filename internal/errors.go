package hub

import "errors"

// Sentinel errors for the hub domain.
var (
	ErrStreamClosed = errors.New("stream closed")
	ErrBusClosed    = errors.New("bus closed")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
)
