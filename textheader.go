package imgdemux

import (
	"fmt"
	"io"
	"iter"
	"strconv"
)

// DecoderState is the position of a decoder in its element sequence.
// Transitions are strictly forward; no state is revisited.
type DecoderState uint8

const (
	StatePending DecoderState = iota
	StateSignature
	StateHeader
	StateData
)

func (s DecoderState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSignature:
		return "signature"
	case StateHeader:
		return "header"
	case StateData:
		return "data"
	}
	return "unknown"
}

// TextHeader holds the parsed header fields of a Netpbm image.
//
// For positional formats Depth and Tuple are fixed by the format variant;
// for PAM they come from the DEPTH and TUPLTYPE header fields.
type TextHeader struct {
	Format TextFormat
	Width  uint64
	Height uint64
	Depth  uint8
	Maxval uint16
	Tuple  TupleType
}

// BytesPerSample is 2 when the sample range needs two bytes, else 1.
func (h TextHeader) BytesPerSample() int {
	if h.Maxval > 255 {
		return 2
	}
	return 1
}

// Data is a lazy descriptor of the pixel payload: an unread byte range in
// the source. For the plain (ASCII-sample) variants Length is the decoded
// sample byte count rather than the on-disk text length.
type Data struct {
	Offset uint64
	Length uint64
}

// TextDecoder parses the signature, header and payload descriptor of a
// Netpbm image. The same implementation serves the positional header
// grammar (PBM/PGM/PPM) and the keyed PAM grammar; the grammar is selected
// by the signature.
//
// Operations are valid only from a specific prior state; calling one out
// of order is a programming error and panics. Any parse or I/O failure is
// terminal for the decode attempt.
type TextDecoder struct {
	state       DecoderState
	lines       *LineReader
	src         io.ReadSeeker
	format      TextFormat
	payloadSize uint64
	err         error
}

// NewTextDecoder returns a decoder owning src's cursor.
func NewTextDecoder(src io.ReadSeeker) *TextDecoder {
	return &TextDecoder{
		state: StatePending,
		lines: NewLineReader(src),
		src:   src,
	}
}

// State returns the decoder's current state.
func (d *TextDecoder) State() DecoderState { return d.state }

func (d *TextDecoder) mustState(op string, want DecoderState) {
	if d.state != want {
		panic(fmt.Sprintf("imgdemux: %s called in state %q, want %q", op, d.state, want))
	}
}

// ReadSignature seeks to the start of the source and reads the 2-byte
// magic number. Valid only from StatePending. A token that is absent, not
// exactly two bytes, or not a known Netpbm magic fails with
// ErrInvalidSignature and leaves the state at StatePending.
func (d *TextDecoder) ReadSignature() ([2]byte, error) {
	d.mustState("ReadSignature", StatePending)

	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return [2]byte{}, fmt.Errorf("imgdemux: seek signature: %w", err)
	}

	tok, err := d.lines.Next()
	if err == io.EOF {
		return [2]byte{}, ErrInvalidSignature
	}
	if err != nil {
		return [2]byte{}, err
	}
	if len(tok) != 2 {
		return [2]byte{}, ErrInvalidSignature
	}

	format, ok := lookupTextFormat(tok)
	if !ok {
		return [2]byte{}, ErrInvalidSignature
	}

	d.format = format
	d.state = StateSignature
	return [2]byte{tok[0], tok[1]}, nil
}

// nextValue returns the next header token, skipping comment tokens
// (those beginning with '#'). Tokens must be ASCII.
func (d *TextDecoder) nextValue() (string, error) {
	for {
		tok, err := d.lines.Next()
		if err == io.EOF {
			return "", ErrInvalidHeader
		}
		if err != nil {
			return "", err
		}
		if tok[0] == '#' {
			continue
		}
		for _, b := range tok {
			if b >= 0x80 {
				return "", ErrInvalidHeader
			}
		}
		return string(tok), nil
	}
}

func (d *TextDecoder) nextUint(bits int) (uint64, error) {
	val, err := d.nextValue()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(val, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: bad numeric field %q", ErrInvalidHeader, val)
	}
	return v, nil
}

// ReadHeader parses the rest of the header under the grammar selected by
// the signature and computes the payload size. Valid only from
// StateSignature. Malformed, duplicate, unknown or out-of-range fields
// fail with ErrInvalidHeader.
func (d *TextDecoder) ReadHeader() (TextHeader, error) {
	d.mustState("ReadHeader", StateSignature)

	var hdr TextHeader
	var err error
	if d.format.Keyed() {
		hdr, err = d.readKeyedHeader()
	} else {
		hdr, err = d.readPositionalHeader()
	}
	if err != nil {
		return TextHeader{}, err
	}

	if hdr.Width == 0 || hdr.Height == 0 || hdr.Depth == 0 {
		return TextHeader{}, fmt.Errorf("%w: zero dimension", ErrInvalidHeader)
	}

	d.payloadSize = hdr.Width * hdr.Height * uint64(hdr.Depth) * uint64(hdr.BytesPerSample())
	d.state = StateHeader
	return hdr, nil
}

// readPositionalHeader parses width, height and (for formats with a
// sample range) maxval, in that fixed order.
func (d *TextDecoder) readPositionalHeader() (TextHeader, error) {
	width, err := d.nextUint(64)
	if err != nil {
		return TextHeader{}, err
	}
	height, err := d.nextUint(64)
	if err != nil {
		return TextHeader{}, err
	}

	maxval := uint64(1)
	if d.format.HasMaxval() {
		maxval, err = d.nextUint(16)
		if err != nil {
			return TextHeader{}, err
		}
		if maxval < 1 || maxval > 255 {
			return TextHeader{}, fmt.Errorf("%w: maxval %d out of range [1,255]", ErrInvalidHeader, maxval)
		}
	}

	tuple := TupleGrayscale
	if d.format.Channels() == 3 {
		tuple = TupleRGB
	} else if !d.format.HasMaxval() {
		tuple = TupleBlackAndWhite
	}

	return TextHeader{
		Format: d.format,
		Width:  width,
		Height: height,
		Depth:  uint8(d.format.Channels()),
		Maxval: uint16(maxval),
		Tuple:  tuple,
	}, nil
}

// readKeyedHeader parses PAM key/value pairs up to the ENDHDR terminator.
// Each key besides the terminator may appear at most once and all keys are
// required.
func (d *TextDecoder) readKeyedHeader() (TextHeader, error) {
	var (
		width, height *uint64
		depth         *uint8
		maxval        *uint16
		tuple         *TupleType
	)

	for {
		key, err := d.nextValue()
		if err != nil {
			return TextHeader{}, err
		}

		switch key {
		case "WIDTH":
			if width != nil {
				return TextHeader{}, fmt.Errorf("%w: duplicate WIDTH", ErrInvalidHeader)
			}
			v, err := d.nextUint(64)
			if err != nil {
				return TextHeader{}, err
			}
			width = &v

		case "HEIGHT":
			if height != nil {
				return TextHeader{}, fmt.Errorf("%w: duplicate HEIGHT", ErrInvalidHeader)
			}
			v, err := d.nextUint(64)
			if err != nil {
				return TextHeader{}, err
			}
			height = &v

		case "DEPTH":
			if depth != nil {
				return TextHeader{}, fmt.Errorf("%w: duplicate DEPTH", ErrInvalidHeader)
			}
			v, err := d.nextUint(8)
			if err != nil {
				return TextHeader{}, err
			}
			d8 := uint8(v)
			depth = &d8

		case "MAXVAL":
			if maxval != nil {
				return TextHeader{}, fmt.Errorf("%w: duplicate MAXVAL", ErrInvalidHeader)
			}
			v, err := d.nextUint(16)
			if err != nil {
				return TextHeader{}, err
			}
			if v < 1 {
				return TextHeader{}, fmt.Errorf("%w: maxval must be positive", ErrInvalidHeader)
			}
			m16 := uint16(v)
			maxval = &m16

		case "TUPLTYPE":
			if tuple != nil {
				return TextHeader{}, fmt.Errorf("%w: duplicate TUPLTYPE", ErrInvalidHeader)
			}
			val, err := d.nextValue()
			if err != nil {
				return TextHeader{}, err
			}
			t, err := ParseTupleType(val)
			if err != nil {
				return TextHeader{}, err
			}
			tuple = &t

		case "ENDHDR":
			if width == nil || height == nil || depth == nil || maxval == nil || tuple == nil {
				return TextHeader{}, fmt.Errorf("%w: missing required field at ENDHDR", ErrInvalidHeader)
			}
			return TextHeader{
				Format: d.format,
				Width:  *width,
				Height: *height,
				Depth:  *depth,
				Maxval: *maxval,
				Tuple:  *tuple,
			}, nil

		default:
			return TextHeader{}, fmt.Errorf("%w: unknown field %q", ErrInvalidHeader, key)
		}
	}
}

// ReadData captures the current cursor position as the payload offset and
// returns the payload descriptor without reading any payload bytes. Valid
// only from StateHeader; StateData is terminal.
func (d *TextDecoder) ReadData() (Data, error) {
	d.mustState("ReadData", StateHeader)
	if d.payloadSize == 0 {
		panic("imgdemux: ReadData with unset payload size")
	}

	pos, err := d.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return Data{}, fmt.Errorf("imgdemux: locate payload: %w", err)
	}

	d.state = StateData
	return Data{Offset: uint64(pos), Length: d.payloadSize}, nil
}

// Elements returns a pull iterator over the decoder's element sequence:
// signature, header, payload descriptor, in that order. The sequence ends
// at the terminal state or at the first failure; Err reports the failure,
// if any, once iteration stops.
func (d *TextDecoder) Elements() iter.Seq[TextElement] {
	return func(yield func(TextElement) bool) {
		for {
			var elem TextElement
			switch d.state {
			case StatePending:
				sig, err := d.ReadSignature()
				if err != nil {
					d.err = err
					return
				}
				elem = TextElement{Kind: ElementSignature, Signature: sig}
			case StateSignature:
				hdr, err := d.ReadHeader()
				if err != nil {
					d.err = err
					return
				}
				elem = TextElement{Kind: ElementHeader, Header: hdr}
			case StateHeader:
				data, err := d.ReadData()
				if err != nil {
					d.err = err
					return
				}
				elem = TextElement{Kind: ElementData, Data: data}
			default:
				return
			}
			if !yield(elem) {
				return
			}
		}
	}
}

// Err returns the error that ended an Elements iteration, if any.
func (d *TextDecoder) Err() error { return d.err }
