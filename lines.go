package imgdemux

import (
	"fmt"
	"io"
)

// LineReader splits a seekable byte stream into whitespace-delimited
// tokens. A token ends at the first whitespace byte (space, tab, line
// feed, vertical tab, form feed or carriage return) or at end of stream.
//
// When a token is terminated by a line feed immediately followed by a
// carriage return, or vice versa, the pair is consumed as a single
// terminator. Otherwise the lookahead byte is pushed back by rewinding
// the cursor one byte, so it begins the next token. The reader never
// looks more than one byte past a terminator.
//
// The sequence is not restartable; reuse requires reseeking the source
// and constructing a fresh reader.
type LineReader struct {
	src io.ReadSeeker
	buf [1]byte
}

// NewLineReader wraps src. The reader takes over the source's cursor;
// no other reader may use it until the sequence is exhausted.
func NewLineReader(src io.ReadSeeker) *LineReader {
	return &LineReader{src: src}
}

func isLineWhitespace(b byte) bool {
	switch b {
	case '\t', '\n', '\v', '\f', '\r', ' ':
		return true
	}
	return false
}

// Next returns the next token. It returns io.EOF when the sequence ends:
// at end of stream with no token in progress, or when a terminator is
// encountered before any token byte. A partial token cut off by end of
// stream is returned once before io.EOF.
func (r *LineReader) Next() ([]byte, error) {
	var line []byte

	for {
		n, err := r.src.Read(r.buf[:])
		if n == 0 {
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("imgdemux: read token: %w", err)
			}
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		}

		b := r.buf[0]
		if !isLineWhitespace(b) {
			line = append(line, b)
			continue
		}

		// Coalesce LF+CR or CR+LF terminator pairs.
		if b == '\n' || b == '\r' {
			if err := r.coalesce(b); err != nil {
				return nil, err
			}
		}

		if len(line) > 0 {
			return line, nil
		}
		return nil, io.EOF
	}
}

// coalesce reads one byte past the terminator. If it completes a CR/LF
// pair it is consumed; otherwise the cursor is rewound so the byte begins
// the next token.
func (r *LineReader) coalesce(term byte) error {
	n, err := r.src.Read(r.buf[:])
	if n == 0 {
		if err != nil && err != io.EOF {
			return fmt.Errorf("imgdemux: read token: %w", err)
		}
		return nil
	}

	pair := r.buf[0] == '\r'
	if term == '\r' {
		pair = r.buf[0] == '\n'
	}
	if pair {
		return nil
	}

	if _, err := r.src.Seek(-1, io.SeekCurrent); err != nil {
		return fmt.Errorf("imgdemux: push back lookahead: %w", err)
	}
	return nil
}
