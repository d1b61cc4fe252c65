package imgdemux

// ElementKind tags one element of a decode sequence.
type ElementKind uint8

const (
	ElementSignature ElementKind = iota
	ElementHeader
	ElementData
	ElementChunk
)

func (k ElementKind) String() string {
	switch k {
	case ElementSignature:
		return "signature"
	case ElementHeader:
		return "header"
	case ElementData:
		return "data"
	case ElementChunk:
		return "chunk"
	}
	return "unknown"
}

// TextElement is one element of a text-format decode sequence. Only the
// field matching Kind is meaningful.
type TextElement struct {
	Kind      ElementKind
	Signature [2]byte
	Header    TextHeader
	Data      Data
}

// ChunkElement is one element of a chunk-container decode sequence. Only
// the field matching Kind is meaningful.
type ChunkElement struct {
	Kind      ElementKind
	Signature [8]byte
	Chunk     Chunk
}
