package imgdemux

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature  = errors.New("imgdemux: invalid signature")
	ErrInvalidHeader     = errors.New("imgdemux: invalid header")
	ErrInvalidChunk      = errors.New("imgdemux: invalid chunk")
	ErrTruncated         = errors.New("imgdemux: truncated data")
	ErrUnsupportedFormat = errors.New("imgdemux: unsupported format")
)

// CRCError reports a chunk whose stored checksum does not match the
// checksum computed over its type code and payload bytes.
//
// Skip is the number of bytes from the chunk's payload offset to the start
// of the next chunk record (declared length plus the 4 CRC bytes). After a
// CRCError from ChunkDecoder.ReadChunk the source cursor already sits at
// that boundary, so a consumer may resynchronize by simply calling
// ReadChunk again instead of aborting the stream.
type CRCError struct {
	Kind     ChunkKind
	Stored   uint32
	Computed uint32
	Skip     int64
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("imgdemux: crc mismatch in %s chunk: stored %08x, computed %08x",
		e.Kind, e.Stored, e.Computed)
}
