// Package sse implements the stream core of the Beacon hub: frame encoding,
// heartbeat scheduling, and the per-stream pump and lifecycle.
package sse

import (
	"bytes"
	"strings"

	hub "github.com/beaconhub/beacon/internal"
)

// Pre-allocated byte slices for SSE framing. These avoid heap allocations
// on every encode in the streaming hot path.
var (
	eventPrefix = []byte("event: ")
	dataPrefix  = []byte("data: ")
	crlf        = []byte("\r\n")
)

// heartbeatFrame is the complete keep-alive frame: a bare line terminator.
var heartbeatFrame = hub.Frame("\r\n")

// Heartbeat returns the two-byte keep-alive frame.
func Heartbeat() hub.Frame {
	return heartbeatFrame
}

// Encode renders an event into its wire frame:
//
//	event: <name>\r\n
//	data: <line1>\r\n
//	data: <line2>\r\n
//	\r\n
//
// Data is split into lines on "\n" or "\r\n". A value with no newline yields
// exactly one data line; empty data yields one empty data line. All text is
// written as-is in UTF-8, no further escaping.
func Encode(ev hub.Event) hub.Frame {
	name := ev.Name
	if name == "" {
		name = hub.DefaultEventName
	}
	lines := splitLines(ev.Data)

	size := len(eventPrefix) + len(name) + 2 + 2
	for _, l := range lines {
		size += len(dataPrefix) + len(l) + 2
	}

	var b bytes.Buffer
	b.Grow(size)
	b.Write(eventPrefix)
	b.WriteString(name)
	b.Write(crlf)
	for _, l := range lines {
		b.Write(dataPrefix)
		b.WriteString(l)
		b.Write(crlf)
	}
	b.Write(crlf)
	return b.Bytes()
}

// splitLines splits data on "\n" or "\r\n" line breaks. A lone "\r" is not
// a line break and passes through untouched.
func splitLines(data string) []string {
	if !strings.Contains(data, "\n") {
		return []string{data}
	}
	data = strings.ReplaceAll(data, "\r\n", "\n")
	return strings.Split(data, "\n")
}
