package imgdemux

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
)

// PNG file signature.
// http://www.w3.org/TR/PNG/#5PNG-file-signature
var pngSignature = [8]byte{137, 80, 78, 71, 13, 10, 26, 10}

// ChunkKind enumerates the recognized PNG chunk types.
// https://www.w3.org/TR/PNG/#4Concepts.FormatTypes
type ChunkKind uint8

const (
	// KindUnknown marks a chunk whose type code is outside the known
	// vocabulary; it is only produced when unknown chunks are skippable.
	KindUnknown ChunkKind = iota

	// Critical chunks.
	KindIHDR // image header, first chunk in the datastream
	KindPLTE // palette table
	KindIDAT // image data
	KindIEND // image trailer, last chunk in the datastream

	// Ancillary chunks.
	KindTRNS // transparency
	KindCHRM // primary chromaticities and white point
	KindGAMA // image gamma
	KindICCP // embedded ICC profile
	KindSBIT // significant bits
	KindSRGB // standard RGB colour space
	KindITXT // international textual data
	KindTEXT // textual data
	KindZTXT // compressed textual data
	KindBKGD // background colour
	KindHIST // image histogram
	KindPHYS // physical pixel dimensions
	KindSPLT // suggested palette
	KindTIME // image last-modification time
)

var chunkTags = map[ChunkKind]string{
	KindIHDR: "IHDR",
	KindPLTE: "PLTE",
	KindIDAT: "IDAT",
	KindIEND: "IEND",
	KindTRNS: "tRNS",
	KindCHRM: "cHRM",
	KindGAMA: "gAMA",
	KindICCP: "iCCP",
	KindSBIT: "sBIT",
	KindSRGB: "sRGB",
	KindITXT: "iTXt",
	KindTEXT: "tEXt",
	KindZTXT: "zTXt",
	KindBKGD: "bKGD",
	KindHIST: "hIST",
	KindPHYS: "pHYs",
	KindSPLT: "sPLT",
	KindTIME: "tIME",
}

var chunkKinds = func() map[string]ChunkKind {
	m := make(map[string]ChunkKind, len(chunkTags))
	for k, tag := range chunkTags {
		m[tag] = k
	}
	return m
}()

// lookupChunkKind classifies a 4-byte type code.
func lookupChunkKind(tag [4]byte) (ChunkKind, bool) {
	k, ok := chunkKinds[string(tag[:])]
	return k, ok
}

func (k ChunkKind) String() string {
	if tag, ok := chunkTags[k]; ok {
		return tag
	}
	return "unknown"
}

// IsCritical reports whether the chunk kind is required for structural
// validity of the datastream.
func (k ChunkKind) IsCritical() bool {
	switch k {
	case KindIHDR, KindPLTE, KindIDAT, KindIEND:
		return true
	}
	return false
}

// IsAncillary reports whether the chunk kind is optional metadata.
func (k ChunkKind) IsAncillary() bool {
	return k != KindUnknown && !k.IsCritical()
}

// ColorType is the IHDR colour type field. Each variant fixes the number
// of samples per pixel.
type ColorType uint8

const (
	ColorGrayscale      ColorType = 0
	ColorTruecolor      ColorType = 2
	ColorIndexed        ColorType = 3
	ColorGrayscaleAlpha ColorType = 4
	ColorTruecolorAlpha ColorType = 6
)

// Samples returns the number of samples per pixel for the colour type.
func (c ColorType) Samples() int {
	switch c {
	case ColorGrayscale, ColorIndexed:
		return 1
	case ColorGrayscaleAlpha:
		return 2
	case ColorTruecolor:
		return 3
	case ColorTruecolorAlpha:
		return 4
	}
	return 0
}

func (c ColorType) String() string {
	switch c {
	case ColorGrayscale:
		return "grayscale"
	case ColorTruecolor:
		return "truecolor"
	case ColorIndexed:
		return "indexed"
	case ColorGrayscaleAlpha:
		return "grayscale+alpha"
	case ColorTruecolorAlpha:
		return "truecolor+alpha"
	}
	return "unknown"
}

// BitDepth is the IHDR bit depth field: bits per sample, or per palette
// index for indexed images.
type BitDepth uint8

// validBitDepth reports whether depth is legal for the colour type, per
// the PNG spec's allowed combinations table.
func validBitDepth(c ColorType, d BitDepth) bool {
	switch c {
	case ColorGrayscale:
		return d == 1 || d == 2 || d == 4 || d == 8 || d == 16
	case ColorIndexed:
		return d == 1 || d == 2 || d == 4 || d == 8
	case ColorTruecolor, ColorGrayscaleAlpha, ColorTruecolorAlpha:
		return d == 8 || d == 16
	}
	return false
}

// IHDRLength is the fixed byte length of the IHDR chunk payload.
const IHDRLength = 13

// IHDRData is the parsed IHDR chunk payload. Only structure and field
// ranges are validated; no pixel reconstruction happens here.
type IHDRData struct {
	Width       uint32
	Height      uint32
	Depth       BitDepth
	Color       ColorType
	Compression uint8 // 0: deflate/inflate
	Filter      uint8 // 0: adaptive filtering with five basic filter types
	Interlace   uint8 // 0: none, 1: Adam7
}

// ParseIHDR decodes the fixed 13-byte IHDR payload layout.
func ParseIHDR(p []byte) (IHDRData, error) {
	if len(p) != IHDRLength {
		return IHDRData{}, fmt.Errorf("%w: IHDR payload is %d bytes, want %d", ErrInvalidChunk, len(p), IHDRLength)
	}

	h := IHDRData{
		Width:       binary.BigEndian.Uint32(p[0:4]),
		Height:      binary.BigEndian.Uint32(p[4:8]),
		Depth:       BitDepth(p[8]),
		Color:       ColorType(p[9]),
		Compression: p[10],
		Filter:      p[11],
		Interlace:   p[12],
	}

	if h.Width == 0 || h.Height == 0 {
		return IHDRData{}, fmt.Errorf("%w: zero dimension", ErrInvalidChunk)
	}
	if h.Color.Samples() == 0 {
		return IHDRData{}, fmt.Errorf("%w: bad colour type %d", ErrInvalidChunk, uint8(h.Color))
	}
	if !validBitDepth(h.Color, h.Depth) {
		return IHDRData{}, fmt.Errorf("%w: bit depth %d invalid for %s", ErrInvalidChunk, uint8(h.Depth), h.Color)
	}
	if h.Compression != 0 {
		return IHDRData{}, fmt.Errorf("%w: bad compression method %d", ErrInvalidChunk, h.Compression)
	}
	if h.Filter != 0 {
		return IHDRData{}, fmt.Errorf("%w: bad filter method %d", ErrInvalidChunk, h.Filter)
	}
	if h.Interlace > 1 {
		return IHDRData{}, fmt.Errorf("%w: bad interlace method %d", ErrInvalidChunk, h.Interlace)
	}
	return h, nil
}

// ReadIHDR seeks to an IHDR chunk's payload and parses it.
func ReadIHDR(src io.ReadSeeker, c Chunk) (IHDRData, error) {
	if c.Kind != KindIHDR {
		return IHDRData{}, fmt.Errorf("%w: not an IHDR chunk: %s", ErrInvalidChunk, c.Kind)
	}
	if c.Length != IHDRLength {
		return IHDRData{}, fmt.Errorf("%w: IHDR length %d, want %d", ErrInvalidChunk, c.Length, IHDRLength)
	}
	if _, err := src.Seek(int64(c.Offset), io.SeekStart); err != nil {
		return IHDRData{}, fmt.Errorf("imgdemux: seek IHDR payload: %w", err)
	}
	var p [IHDRLength]byte
	if _, err := io.ReadFull(src, p[:]); err != nil {
		return IHDRData{}, fmt.Errorf("%w: IHDR payload: %v", ErrTruncated, err)
	}
	return ParseIHDR(p[:])
}

// Chunk describes, but does not contain, one framed chunk record. Offset
// points at the first payload byte in the source.
type Chunk struct {
	Index  int
	Length uint32
	Kind   ChunkKind
	Raw    [4]byte // type code as it appears on the wire
	CRC    [4]byte // stored checksum over type code and payload
	Offset uint64
}

// StoredCRC returns the record's stored checksum as an integer.
func (c Chunk) StoredCRC() uint32 {
	return binary.BigEndian.Uint32(c.CRC[:])
}

// Payload returns the chunk's payload descriptor.
func (c Chunk) Payload() Data {
	return Data{Offset: c.Offset, Length: uint64(c.Length)}
}

// VerifyCRC recomputes the checksum over the type code and payload bytes
// and compares it against the stored value, for consumers that framed the
// stream with verification disabled. The source's cursor is repositioned.
func (c Chunk) VerifyCRC(src io.ReadSeeker) error {
	if _, err := src.Seek(int64(c.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("imgdemux: seek chunk payload: %w", err)
	}
	h := crc32.NewIEEE()
	h.Write(c.Raw[:])
	if _, err := io.CopyN(h, src, int64(c.Length)); err != nil {
		return fmt.Errorf("%w: %s chunk payload: %v", ErrTruncated, c.Kind, err)
	}
	if sum := h.Sum32(); sum != c.StoredCRC() {
		return &CRCError{
			Kind:     c.Kind,
			Stored:   c.StoredCRC(),
			Computed: sum,
			Skip:     int64(c.Length) + 4,
		}
	}
	return nil
}

// ChunkDecoderState is the position of a ChunkDecoder in its element
// sequence.
type ChunkDecoderState uint8

const (
	ChunkStatePending ChunkDecoderState = iota
	ChunkStateSignature
	ChunkStateChunk
	ChunkStateTrailer
)

func (s ChunkDecoderState) String() string {
	switch s {
	case ChunkStatePending:
		return "pending"
	case ChunkStateSignature:
		return "signature"
	case ChunkStateChunk:
		return "chunk"
	case ChunkStateTrailer:
		return "trailer"
	}
	return "unknown"
}

// ChunkDecoderOptions controls chunk framing policy.
type ChunkDecoderOptions struct {
	// VerifyCRC makes the decoder check each chunk's checksum while
	// framing it. A mismatch yields a *CRCError carrying a resync hint;
	// the cursor is left at the next record boundary so the consumer may
	// continue with the next ReadChunk. When false, the stored checksum
	// still rides on the record for a later Chunk.VerifyCRC.
	VerifyCRC bool

	// SkipUnknownChunks frames unrecognized type codes as KindUnknown
	// records, preserving the raw code, instead of failing with
	// ErrInvalidChunk. The PNG convention treats unknown ancillary
	// chunks as skippable; the historical default here is stricter.
	SkipUnknownChunks bool
}

// DefaultChunkDecoderOptions verifies checksums eagerly and treats
// unknown chunk types as fatal.
func DefaultChunkDecoderOptions() ChunkDecoderOptions {
	return ChunkDecoderOptions{VerifyCRC: true}
}

// ChunkDecoder frames the length-prefixed, type-tagged, checksum-trailed
// records of a PNG datastream. It reads framing bytes only; payloads are
// reported as offset/length descriptors.
//
// ReadSignature must come first; ReadChunk repeats until the IEND trailer.
// Calling ReadChunk before the signature is a programming error and
// panics. Any framing failure other than a *CRCError is terminal.
type ChunkDecoder struct {
	state ChunkDecoderState
	src   io.ReadSeeker
	opts  ChunkDecoderOptions
	index int
	err   error
}

// NewChunkDecoder returns a decoder with default options, owning src's
// cursor.
func NewChunkDecoder(src io.ReadSeeker) *ChunkDecoder {
	return NewChunkDecoderWithOptions(src, DefaultChunkDecoderOptions())
}

// NewChunkDecoderWithOptions returns a decoder with explicit framing
// policy.
func NewChunkDecoderWithOptions(src io.ReadSeeker, opts ChunkDecoderOptions) *ChunkDecoder {
	return &ChunkDecoder{
		state: ChunkStatePending,
		src:   src,
		opts:  opts,
	}
}

// State returns the decoder's current state.
func (d *ChunkDecoder) State() ChunkDecoderState { return d.state }

// ReadSignature seeks to the start of the source and matches the 8-byte
// PNG signature byte-exactly. Valid only from ChunkStatePending. A short
// read or mismatch fails with ErrInvalidSignature and leaves the state
// unchanged; success resets the chunk index.
func (d *ChunkDecoder) ReadSignature() ([8]byte, error) {
	if d.state != ChunkStatePending {
		panic(fmt.Sprintf("imgdemux: ReadSignature called in state %q, want %q", d.state, ChunkStatePending))
	}

	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return [8]byte{}, fmt.Errorf("imgdemux: seek signature: %w", err)
	}

	var sig [8]byte
	if _, err := io.ReadFull(d.src, sig[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return [8]byte{}, ErrInvalidSignature
		}
		return [8]byte{}, fmt.Errorf("imgdemux: read signature: %w", err)
	}
	if !bytes.Equal(sig[:], pngSignature[:]) {
		return [8]byte{}, ErrInvalidSignature
	}

	d.index = 0
	d.state = ChunkStateSignature
	return sig, nil
}

// ReadChunk frames the next chunk record: 4-byte big-endian length,
// 4-byte type code, payload (skipped, offset recorded), 4-byte checksum.
// Valid from ChunkStateSignature or ChunkStateChunk; after the IEND
// trailer it returns io.EOF without reading.
func (d *ChunkDecoder) ReadChunk() (Chunk, error) {
	switch d.state {
	case ChunkStateSignature, ChunkStateChunk:
	case ChunkStateTrailer:
		return Chunk{}, io.EOF
	default:
		panic(fmt.Sprintf("imgdemux: ReadChunk called in state %q", d.state))
	}

	var head [8]byte
	if _, err := io.ReadFull(d.src, head[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Chunk{}, fmt.Errorf("%w: chunk header", ErrTruncated)
		}
		return Chunk{}, fmt.Errorf("imgdemux: read chunk header: %w", err)
	}

	length := binary.BigEndian.Uint32(head[0:4])
	var raw [4]byte
	copy(raw[:], head[4:8])

	kind, known := lookupChunkKind(raw)
	if !known {
		if !d.opts.SkipUnknownChunks {
			return Chunk{}, fmt.Errorf("%w: unknown chunk type %q", ErrInvalidChunk, raw[:])
		}
		kind = KindUnknown
	}

	pos, err := d.src.Seek(0, io.SeekCurrent)
	if err != nil {
		return Chunk{}, fmt.Errorf("imgdemux: locate chunk payload: %w", err)
	}

	var computed uint32
	if d.opts.VerifyCRC {
		h := crc32.NewIEEE()
		h.Write(raw[:])
		if _, err := io.CopyN(h, d.src, int64(length)); err != nil {
			return Chunk{}, fmt.Errorf("%w: %s chunk payload", ErrTruncated, kind)
		}
		computed = h.Sum32()
	} else {
		if _, err := d.src.Seek(int64(length), io.SeekCurrent); err != nil {
			return Chunk{}, fmt.Errorf("imgdemux: skip chunk payload: %w", err)
		}
	}

	var crc [4]byte
	if _, err := io.ReadFull(d.src, crc[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Chunk{}, fmt.Errorf("%w: %s chunk crc", ErrTruncated, kind)
		}
		return Chunk{}, fmt.Errorf("imgdemux: read chunk crc: %w", err)
	}

	if d.opts.VerifyCRC {
		if stored := binary.BigEndian.Uint32(crc[:]); stored != computed {
			// Cursor already sits at the next record boundary; state and
			// index are untouched so the consumer may resynchronize.
			return Chunk{}, &CRCError{
				Kind:     kind,
				Stored:   stored,
				Computed: computed,
				Skip:     int64(length) + 4,
			}
		}
	}

	chunk := Chunk{
		Index:  d.index,
		Length: length,
		Kind:   kind,
		Raw:    raw,
		CRC:    crc,
		Offset: uint64(pos),
	}

	d.index++
	if kind == KindIEND {
		d.state = ChunkStateTrailer
	} else {
		d.state = ChunkStateChunk
	}
	return chunk, nil
}

// Elements returns a pull iterator over the decoder's element sequence:
// one signature element followed by chunk records, ending after the IEND
// trailer or at the first failure. Err reports the failure, if any, once
// iteration stops.
func (d *ChunkDecoder) Elements() iter.Seq[ChunkElement] {
	return func(yield func(ChunkElement) bool) {
		if d.state == ChunkStatePending {
			sig, err := d.ReadSignature()
			if err != nil {
				d.err = err
				return
			}
			if !yield(ChunkElement{Kind: ElementSignature, Signature: sig}) {
				return
			}
		}
		for d.state != ChunkStateTrailer {
			chunk, err := d.ReadChunk()
			if err != nil {
				d.err = err
				return
			}
			if !yield(ChunkElement{Kind: ElementChunk, Chunk: chunk}) {
				return
			}
		}
	}
}

// Err returns the error that ended an Elements iteration, if any.
func (d *ChunkDecoder) Err() error { return d.err }
