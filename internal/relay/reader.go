// Package relay mirrors an upstream SSE feed into a local channel.
package relay

import (
	"bufio"
	"io"
	"strings"
)

const maxLineSize = 64 * 1024 // 64KB per SSE line

// newScanner returns a bufio.Scanner configured for reading SSE lines with
// a 64KB buffer. Each call to Scan() returns a single line (without the trailing newline).
func newScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxLineSize)
	return s
}

// parseLine parses a single SSE field line into its name and value.
// It returns ok=false for comments and malformed lines. Blank lines are the
// caller's dispatch boundary and never reach this function.
//
// SSE format:
//
//	"event: <type>" -> field="event", value=type
//	"data: <payload>" -> field="data", value=payload
//	"id: <id>"       -> field="id", value=id
//	": comment"      -> ok=false
func parseLine(line string) (field, value string, ok bool) {
	// SSE comments start with ':'
	if line == "" || line[0] == ':' {
		return "", "", false
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	// Upstream servers may put a single space after the colon.
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event", "data", "id", "retry":
		return field, value, true
	default:
		return "", "", false
	}
}
