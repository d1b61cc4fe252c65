// Package imgdemux implements pull-based structural decoders for the
// Netpbm family of text-header image formats (PBM, PGM, PPM, PAM) and the
// PNG chunk container.
//
// The decoders locate, classify and validate the regions of an image file
// without copying payload bytes: pixel and compressed data are reported as
// offset/length descriptors into the underlying source, so arbitrarily
// large images cost O(1) memory during structural parsing. Actual pixel
// decompression and reconstruction are the consumer's job.
//
// Text formats:
//
//	dec := imgdemux.NewTextDecoder(file)
//	sig, err := dec.ReadSignature()
//	hdr, err := dec.ReadHeader()
//	data, err := dec.ReadData() // data.Offset, data.Length
//
// PNG containers:
//
//	dec := imgdemux.NewChunkDecoder(file)
//	sig, err := dec.ReadSignature()
//	for {
//	    chunk, err := dec.ReadChunk()
//	    ...
//	}
//
// Both decoders also expose an Elements iterator that yields tagged
// elements until the terminal state or the first failure.
//
// Each decoder owns its source's cursor exclusively for its lifetime;
// decoders are not safe for concurrent use and must not share a cursor
// with another reader.
package imgdemux
