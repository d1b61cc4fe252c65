package imgdemux

import "fmt"

// Netpbm magic numbers.
// https://en.wikipedia.org/wiki/Netpbm#File_formats
const (
	MagicPBMPlain = "P1" // bitmap, ASCII samples
	MagicPGMPlain = "P2" // graymap, ASCII samples
	MagicPPMPlain = "P3" // pixmap, ASCII samples
	MagicPBMRaw   = "P4" // bitmap, binary samples
	MagicPGMRaw   = "P5" // graymap, binary samples
	MagicPPMRaw   = "P6" // pixmap, binary samples
	MagicPAM      = "P7" // arbitrary map, keyed header
)

// TextFormat identifies a Netpbm format variant by its magic number.
type TextFormat uint8

const (
	FormatPBMPlain TextFormat = iota
	FormatPGMPlain
	FormatPPMPlain
	FormatPBMRaw
	FormatPGMRaw
	FormatPPMRaw
	FormatPAM
)

// lookupTextFormat classifies a 2-byte signature token.
func lookupTextFormat(sig []byte) (TextFormat, bool) {
	switch string(sig) {
	case MagicPBMPlain:
		return FormatPBMPlain, true
	case MagicPGMPlain:
		return FormatPGMPlain, true
	case MagicPPMPlain:
		return FormatPPMPlain, true
	case MagicPBMRaw:
		return FormatPBMRaw, true
	case MagicPGMRaw:
		return FormatPGMRaw, true
	case MagicPPMRaw:
		return FormatPPMRaw, true
	case MagicPAM:
		return FormatPAM, true
	}
	return 0, false
}

// Magic returns the format's 2-byte magic number.
func (f TextFormat) Magic() string {
	switch f {
	case FormatPBMPlain:
		return MagicPBMPlain
	case FormatPGMPlain:
		return MagicPGMPlain
	case FormatPPMPlain:
		return MagicPPMPlain
	case FormatPBMRaw:
		return MagicPBMRaw
	case FormatPGMRaw:
		return MagicPGMRaw
	case FormatPPMRaw:
		return MagicPPMRaw
	case FormatPAM:
		return MagicPAM
	}
	return "??"
}

func (f TextFormat) String() string {
	switch f {
	case FormatPBMPlain, FormatPBMRaw:
		return "PBM"
	case FormatPGMPlain, FormatPGMRaw:
		return "PGM"
	case FormatPPMPlain, FormatPPMRaw:
		return "PPM"
	case FormatPAM:
		return "PAM"
	}
	return "unknown"
}

// Keyed reports whether the format uses the keyed PAM header grammar
// rather than the fixed positional one.
func (f TextFormat) Keyed() bool { return f == FormatPAM }

// HasMaxval reports whether the positional header carries a maxval field.
// Bitmaps have a fixed sample range of [0,1] and omit it.
func (f TextFormat) HasMaxval() bool {
	switch f {
	case FormatPBMPlain, FormatPBMRaw:
		return false
	}
	return true
}

// Channels returns the per-pixel channel count fixed by the format
// variant. For PAM the count comes from the header's DEPTH field instead.
func (f TextFormat) Channels() int {
	switch f {
	case FormatPPMPlain, FormatPPMRaw:
		return 3
	case FormatPAM:
		return 0
	}
	return 1
}

// TupleType is the PAM TUPLTYPE vocabulary.
// http://netpbm.sourceforge.net/doc/pam.html
type TupleType uint8

const (
	TupleBlackAndWhite TupleType = iota
	TupleGrayscale
	TupleRGB
	TupleBlackAndWhiteAlpha
	TupleGrayscaleAlpha
	TupleRGBAlpha
)

// Channels returns the number of samples per pixel for the tuple type.
func (t TupleType) Channels() int {
	switch t {
	case TupleBlackAndWhite, TupleGrayscale:
		return 1
	case TupleBlackAndWhiteAlpha, TupleGrayscaleAlpha:
		return 2
	case TupleRGB:
		return 3
	case TupleRGBAlpha:
		return 4
	}
	return 0
}

func (t TupleType) String() string {
	switch t {
	case TupleBlackAndWhite:
		return "BLACKANDWHITE"
	case TupleGrayscale:
		return "GRAYSCALE"
	case TupleRGB:
		return "RGB"
	case TupleBlackAndWhiteAlpha:
		return "BLACKANDWHITE_ALPHA"
	case TupleGrayscaleAlpha:
		return "GRAYSCALE_ALPHA"
	case TupleRGBAlpha:
		return "RGB_ALPHA"
	}
	return "unknown"
}

// ParseTupleType converts a TUPLTYPE header value.
func ParseTupleType(s string) (TupleType, error) {
	switch s {
	case "BLACKANDWHITE":
		return TupleBlackAndWhite, nil
	case "GRAYSCALE":
		return TupleGrayscale, nil
	case "RGB":
		return TupleRGB, nil
	case "BLACKANDWHITE_ALPHA":
		return TupleBlackAndWhiteAlpha, nil
	case "GRAYSCALE_ALPHA":
		return TupleGrayscaleAlpha, nil
	case "RGB_ALPHA":
		return TupleRGBAlpha, nil
	}
	return 0, fmt.Errorf("%w: unknown tuple type %q", ErrInvalidHeader, s)
}
