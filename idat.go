package imgdemux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// DataChunks filters chunk records down to the data-carrying kind,
// preserving file order. Consecutive IDAT payloads, concatenated in that
// order, form one logical zlib stream.
func DataChunks(chunks []Chunk) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.Kind == KindIDAT {
			out = append(out, c)
		}
	}
	return out
}

// ReassembleImageData reads and concatenates the byte ranges described by
// the IDAT records among chunks, in file order, reproducing the original
// compressed byte stream. The source must be the same one the records
// were framed from.
func ReassembleImageData(src io.ReadSeeker, chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	for _, c := range DataChunks(chunks) {
		if _, err := src.Seek(int64(c.Offset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("imgdemux: seek data chunk %d: %w", c.Index, err)
		}
		if _, err := io.CopyN(&buf, src, int64(c.Length)); err != nil {
			return nil, fmt.Errorf("%w: data chunk %d", ErrTruncated, c.Index)
		}
	}
	return buf.Bytes(), nil
}

// InflateImageData reassembles the compressed stream and runs it through
// the deflate codec, returning the filtered scanline bytes. Defiltering
// and sample reconstruction remain the consumer's job.
func InflateImageData(src io.ReadSeeker, chunks []Chunk) ([]byte, error) {
	compressed, err := ReassembleImageData(src, chunks)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("imgdemux: open deflate stream: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("imgdemux: inflate image data: %w", err)
	}
	return out, nil
}

// ReadImageMeta walks a PNG source far enough to parse its IHDR chunk and
// returns the image's structural metadata without touching pixel data.
func ReadImageMeta(src io.ReadSeeker) (IHDRData, error) {
	dec := NewChunkDecoder(src)
	if _, err := dec.ReadSignature(); err != nil {
		return IHDRData{}, err
	}
	chunk, err := dec.ReadChunk()
	if err != nil {
		return IHDRData{}, err
	}
	if chunk.Kind != KindIHDR {
		return IHDRData{}, fmt.Errorf("%w: first chunk is %s, want IHDR", ErrInvalidChunk, chunk.Kind)
	}
	return ReadIHDR(src, chunk)
}
