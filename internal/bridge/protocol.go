package bridge

import (
	"bytes"
	"strconv"
)

// ResizeMarker introduces an inline resize command in the bridge's stdin.
// A full command is ResizeMarker + "<cols>:<rows>\n".
const ResizeMarker = "__RESIZE__:"

// Window size bounds accepted by the bridge.
const (
	MinCols = 2
	MaxCols = 500
	MinRows = 2
	MaxRows = 200
)

// maxResizePayload bounds the bytes between the marker and its newline.
// Longer runs are not resize commands and pass through to the shell.
const maxResizePayload = 32

var marker = []byte(ResizeMarker)

// Size is a terminal window size in character cells.
type Size struct {
	Cols int
	Rows int
}

// Valid reports whether the size is inside the accepted bounds.
func (s Size) Valid() bool {
	return s.Cols >= MinCols && s.Cols <= MaxCols && s.Rows >= MinRows && s.Rows <= MaxRows
}

// EncodeResize serializes an inline resize command.
func EncodeResize(cols, rows int) []byte {
	b := make([]byte, 0, len(ResizeMarker)+12)
	b = append(b, ResizeMarker...)
	b = strconv.AppendInt(b, int64(cols), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(rows), 10)
	return append(b, '\n')
}

// parseResize parses "<cols>:<rows>". It returns false for anything that
// is not two decimal integers inside the bounds.
func parseResize(payload []byte) (Size, bool) {
	c, r, ok := bytes.Cut(payload, []byte{':'})
	if !ok {
		return Size{}, false
	}
	cols, err := strconv.Atoi(string(c))
	if err != nil {
		return Size{}, false
	}
	rows, err := strconv.Atoi(string(r))
	if err != nil {
		return Size{}, false
	}
	s := Size{Cols: cols, Rows: rows}
	return s, s.Valid()
}

// Demux separates inline resize commands from the raw keystroke stream.
//
// Commands may arrive anywhere in the stream and may be split across
// reads, so Demux holds back a trailing partial marker (or a marker whose
// newline has not arrived yet) until the next Feed decides it. Malformed
// commands are dropped without error.
type Demux struct {
	pending []byte
}

// Feed consumes one read from stdin. It returns the bytes that must reach
// the pty and the valid resize commands found, in stream order relative
// to each other.
func (d *Demux) Feed(p []byte) (out []byte, sizes []Size) {
	data := p
	if len(d.pending) > 0 {
		data = append(d.pending, p...)
		d.pending = nil
	}

	for len(data) > 0 {
		i := bytes.Index(data, marker)
		if i < 0 {
			keep := partialMarker(data)
			out = append(out, data[:len(data)-keep]...)
			if keep > 0 {
				d.pending = append([]byte(nil), data[len(data)-keep:]...)
			}
			return out, sizes
		}

		out = append(out, data[:i]...)
		rest := data[i+len(marker):]
		nl := bytes.IndexByte(rest, '\n')
		switch {
		case nl >= 0 && nl <= maxResizePayload:
			if s, ok := parseResize(rest[:nl]); ok {
				sizes = append(sizes, s)
			}
			data = rest[nl+1:]
		case nl < 0 && len(rest) <= maxResizePayload:
			d.pending = append([]byte(nil), data[i:]...)
			return out, sizes
		default:
			// Not a command: the marker text belongs to the user.
			out = append(out, marker...)
			data = rest
		}
	}
	return out, sizes
}

// Flush releases a held-back partial marker. The bridge calls it once stdin
// has been idle for a poll interval, however busy the shell is, so a lone "_"
// keystroke is not delayed indefinitely. A complete marker still waiting for its payload stays held.
func (d *Demux) Flush() []byte {
	if len(d.pending) == 0 || bytes.HasPrefix(d.pending, marker) {
		return nil
	}
	out := d.pending
	d.pending = nil
	return out
}

// Pending reports whether bytes are being held back.
func (d *Demux) Pending() bool {
	return len(d.pending) > 0
}

// partialMarker returns the length of the longest suffix of data that is a
// proper prefix of the marker.
func partialMarker(data []byte) int {
	n := len(marker) - 1
	if n > len(data) {
		n = len(data)
	}
	for ; n > 0; n-- {
		if bytes.HasSuffix(data, marker[:n]) {
			return n
		}
	}
	return 0
}
