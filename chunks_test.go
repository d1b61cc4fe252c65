package imgdemux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"testing"
)

// appendChunk frames one chunk record: length, type, payload, CRC over
// type and payload.
func appendChunk(buf []byte, tag string, payload []byte) []byte {
	var head [8]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(len(payload)))
	copy(head[4:8], tag)
	buf = append(buf, head[:]...)
	buf = append(buf, payload...)

	h := crc32.NewIEEE()
	h.Write([]byte(tag))
	h.Write(payload)
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], h.Sum32())
	return append(buf, crc[:]...)
}

func ihdrPayload(width, height uint32, depth byte, color byte) []byte {
	p := make([]byte, IHDRLength)
	binary.BigEndian.PutUint32(p[0:4], width)
	binary.BigEndian.PutUint32(p[4:8], height)
	p[8] = depth
	p[9] = color
	return p
}

// buildMinimalPNG creates a signature, one IHDR chunk and one IEND chunk.
func buildMinimalPNG() []byte {
	buf := append([]byte(nil), pngSignature[:]...)
	buf = appendChunk(buf, "IHDR", ihdrPayload(2, 1, 8, 0))
	buf = appendChunk(buf, "IEND", nil)
	return buf
}

func TestChunkDecoderMinimalStream(t *testing.T) {
	dec := NewChunkDecoder(bytes.NewReader(buildMinimalPNG()))

	sig, err := dec.ReadSignature()
	if err != nil {
		t.Fatalf("ReadSignature() error: %v", err)
	}
	if sig != pngSignature {
		t.Errorf("signature = %v, want %v", sig, pngSignature)
	}

	ihdr, err := dec.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk() error: %v", err)
	}
	if ihdr.Kind != KindIHDR || ihdr.Index != 0 || ihdr.Length != IHDRLength {
		t.Errorf("ihdr chunk = %+v", ihdr)
	}
	if ihdr.Offset != 16 {
		t.Errorf("ihdr offset = %d, want 16", ihdr.Offset)
	}

	iend, err := dec.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk() error: %v", err)
	}
	if iend.Kind != KindIEND || iend.Index != 1 || iend.Length != 0 {
		t.Errorf("iend chunk = %+v", iend)
	}
	if dec.State() != ChunkStateTrailer {
		t.Errorf("state = %v, want %v", dec.State(), ChunkStateTrailer)
	}

	// Terminal: further calls end the sequence without reading.
	if _, err := dec.ReadChunk(); err != io.EOF {
		t.Fatalf("ReadChunk() after trailer = %v, want io.EOF", err)
	}
}

func TestChunkDecoderElements(t *testing.T) {
	dec := NewChunkDecoder(bytes.NewReader(buildMinimalPNG()))

	var elems []ChunkElement
	for elem := range dec.Elements() {
		elems = append(elems, elem)
	}
	if dec.Err() != nil {
		t.Fatalf("Err() = %v", dec.Err())
	}
	if len(elems) != 3 {
		t.Fatalf("element count = %d, want 3", len(elems))
	}
	if elems[0].Kind != ElementSignature {
		t.Errorf("element 0 = %v, want signature", elems[0].Kind)
	}
	if elems[1].Chunk.Kind != KindIHDR || elems[2].Chunk.Kind != KindIEND {
		t.Errorf("chunk kinds = %v, %v, want IHDR, IEND", elems[1].Chunk.Kind, elems[2].Chunk.Kind)
	}
}

func TestChunkDecoderInvalidSignature(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"short", pngSignature[:4]},
		{"wrong bytes", []byte("NOTAPNG!")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewChunkDecoder(bytes.NewReader(tt.input))
			if _, err := dec.ReadSignature(); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("ReadSignature() error = %v, want ErrInvalidSignature", err)
			}
			if dec.State() != ChunkStatePending {
				t.Errorf("state after failure = %v, want %v", dec.State(), ChunkStatePending)
			}
		})
	}
}

func TestChunkDecoderUnknownChunk(t *testing.T) {
	buf := append([]byte(nil), pngSignature[:]...)
	buf = appendChunk(buf, "IHDR", ihdrPayload(2, 1, 8, 0))
	buf = appendChunk(buf, "fOOb", []byte{1, 2, 3})
	buf = appendChunk(buf, "IEND", nil)

	t.Run("fatal by default", func(t *testing.T) {
		dec := NewChunkDecoder(bytes.NewReader(buf))
		if _, err := dec.ReadSignature(); err != nil {
			t.Fatal(err)
		}
		if _, err := dec.ReadChunk(); err != nil {
			t.Fatal(err)
		}
		if _, err := dec.ReadChunk(); !errors.Is(err, ErrInvalidChunk) {
			t.Fatalf("ReadChunk() error = %v, want ErrInvalidChunk", err)
		}
	})

	t.Run("skippable by option", func(t *testing.T) {
		opts := DefaultChunkDecoderOptions()
		opts.SkipUnknownChunks = true
		dec := NewChunkDecoderWithOptions(bytes.NewReader(buf), opts)

		var chunks []Chunk
		for elem := range dec.Elements() {
			if elem.Kind == ElementChunk {
				chunks = append(chunks, elem.Chunk)
			}
		}
		if dec.Err() != nil {
			t.Fatalf("Err() = %v", dec.Err())
		}
		if len(chunks) != 3 {
			t.Fatalf("chunk count = %d, want 3", len(chunks))
		}
		unk := chunks[1]
		if unk.Kind != KindUnknown {
			t.Errorf("kind = %v, want KindUnknown", unk.Kind)
		}
		if string(unk.Raw[:]) != "fOOb" {
			t.Errorf("raw type = %q, want \"fOOb\"", unk.Raw[:])
		}
		if unk.Length != 3 {
			t.Errorf("length = %d, want 3", unk.Length)
		}
	})
}

func TestChunkDecoderCRCMismatch(t *testing.T) {
	buf := append([]byte(nil), pngSignature[:]...)
	buf = appendChunk(buf, "IHDR", ihdrPayload(2, 1, 8, 0))
	corruptAt := len(buf)
	buf = appendChunk(buf, "gAMA", []byte{0, 1, 0x86, 0xa0})
	buf[corruptAt+8] ^= 0xff // flip a payload byte, CRC now stale
	buf = appendChunk(buf, "IEND", nil)

	t.Run("eager verification", func(t *testing.T) {
		dec := NewChunkDecoder(bytes.NewReader(buf))
		if _, err := dec.ReadSignature(); err != nil {
			t.Fatal(err)
		}
		if _, err := dec.ReadChunk(); err != nil {
			t.Fatal(err)
		}

		_, err := dec.ReadChunk()
		var crcErr *CRCError
		if !errors.As(err, &crcErr) {
			t.Fatalf("ReadChunk() error = %v, want *CRCError", err)
		}
		if crcErr.Kind != KindGAMA {
			t.Errorf("Kind = %v, want gAMA", crcErr.Kind)
		}
		if crcErr.Skip != 4+4 {
			t.Errorf("Skip = %d, want 8", crcErr.Skip)
		}
		if crcErr.Stored == crcErr.Computed {
			t.Errorf("stored and computed sums both %08x", crcErr.Stored)
		}

		// Cursor sits at the next record boundary: resynchronize.
		next, err := dec.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk() after resync error: %v", err)
		}
		if next.Kind != KindIEND {
			t.Errorf("resynced chunk = %v, want IEND", next.Kind)
		}
	})

	t.Run("lazy verification", func(t *testing.T) {
		src := bytes.NewReader(buf)
		opts := DefaultChunkDecoderOptions()
		opts.VerifyCRC = false
		dec := NewChunkDecoderWithOptions(src, opts)

		if _, err := dec.ReadSignature(); err != nil {
			t.Fatal(err)
		}
		if _, err := dec.ReadChunk(); err != nil {
			t.Fatal(err)
		}
		gama, err := dec.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk() error with lazy crc: %v", err)
		}

		var crcErr *CRCError
		if err := gama.VerifyCRC(src); !errors.As(err, &crcErr) {
			t.Fatalf("VerifyCRC() = %v, want *CRCError", err)
		}
	})
}

func TestChunkDecoderZeroLengthChunk(t *testing.T) {
	buf := append([]byte(nil), pngSignature[:]...)
	buf = appendChunk(buf, "IEND", nil)

	dec := NewChunkDecoder(bytes.NewReader(buf))
	if _, err := dec.ReadSignature(); err != nil {
		t.Fatal(err)
	}
	chunk, err := dec.ReadChunk()
	if err != nil {
		t.Fatalf("ReadChunk() error: %v", err)
	}
	if chunk.Length != 0 {
		t.Errorf("length = %d, want 0", chunk.Length)
	}
	// Offset is the position immediately after the type code.
	if chunk.Offset != 16 {
		t.Errorf("offset = %d, want 16", chunk.Offset)
	}
}

func TestChunkDecoderTruncated(t *testing.T) {
	whole := buildMinimalPNG()
	tests := []struct {
		name string
		cut  int
	}{
		{"inside chunk header", len(pngSignature) + 3},
		{"inside payload", len(pngSignature) + 8 + 5},
		{"inside crc", len(whole) - 2},
		{"length past eof", len(pngSignature) + 8}, // header read, no payload at all
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewChunkDecoder(bytes.NewReader(whole[:tt.cut]))
			if _, err := dec.ReadSignature(); err != nil {
				t.Fatal(err)
			}
			var err error
			for err == nil && dec.State() != ChunkStateTrailer {
				_, err = dec.ReadChunk()
			}
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("error = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestChunkDecoderStatePanics(t *testing.T) {
	dec := NewChunkDecoder(bytes.NewReader(buildMinimalPNG()))
	defer func() {
		if recover() == nil {
			t.Error("ReadChunk before signature did not panic")
		}
	}()
	dec.ReadChunk()
}

func TestParseIHDR(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p []byte)
		wantErr bool
	}{
		{"grayscale 8", func(p []byte) {}, false},
		{"truecolor 16", func(p []byte) { p[8] = 16; p[9] = 2 }, false},
		{"indexed 4", func(p []byte) { p[8] = 4; p[9] = 3 }, false},
		{"adam7 interlace", func(p []byte) { p[12] = 1 }, false},
		{"zero width", func(p []byte) { binary.BigEndian.PutUint32(p[0:4], 0) }, true},
		{"bad colour type", func(p []byte) { p[9] = 5 }, true},
		{"depth invalid for colour", func(p []byte) { p[8] = 4; p[9] = 2 }, true},
		{"bad compression", func(p []byte) { p[10] = 1 }, true},
		{"bad filter", func(p []byte) { p[11] = 1 }, true},
		{"bad interlace", func(p []byte) { p[12] = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ihdrPayload(640, 480, 8, 0)
			tt.mutate(p)
			h, err := ParseIHDR(p)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChunk) {
					t.Fatalf("ParseIHDR() error = %v, want ErrInvalidChunk", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIHDR() error: %v", err)
			}
			if h.Width != 640 || h.Height != 480 {
				t.Errorf("dimensions = %dx%d, want 640x480", h.Width, h.Height)
			}
		})
	}
}

func TestParseIHDRWrongLength(t *testing.T) {
	if _, err := ParseIHDR(make([]byte, 12)); !errors.Is(err, ErrInvalidChunk) {
		t.Fatalf("ParseIHDR() error = %v, want ErrInvalidChunk", err)
	}
}

func TestChunkKindClassification(t *testing.T) {
	critical := []ChunkKind{KindIHDR, KindPLTE, KindIDAT, KindIEND}
	for _, k := range critical {
		if !k.IsCritical() || k.IsAncillary() {
			t.Errorf("%v: IsCritical() = %v, IsAncillary() = %v", k, k.IsCritical(), k.IsAncillary())
		}
	}
	ancillary := []ChunkKind{KindTRNS, KindGAMA, KindICCP, KindTEXT, KindTIME, KindPHYS, KindSPLT, KindBKGD, KindHIST}
	for _, k := range ancillary {
		if k.IsCritical() || !k.IsAncillary() {
			t.Errorf("%v: IsCritical() = %v, IsAncillary() = %v", k, k.IsCritical(), k.IsAncillary())
		}
	}
	if KindUnknown.IsCritical() || KindUnknown.IsAncillary() {
		t.Error("KindUnknown classified as critical or ancillary")
	}
}
