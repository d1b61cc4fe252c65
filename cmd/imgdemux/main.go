package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okanis/imgdemux"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "imgdemux",
		Usage: "Inspect the container structure of Netpbm and PNG image files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "decode policy TOML file"},
			&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
			&cli.BoolFlag{Name: "skip-unknown", Usage: "frame unknown chunk types instead of failing"},
			&cli.BoolFlag{Name: "no-verify-crc", Usage: "disable eager chunk checksum verification"},
		},
		Commands: []*cli.Command{
			chunksCommand(),
			headerCommand(),
			dataCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogger(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", "imgdemux").Logger()
}

// setup resolves the decode policy and opens the input file named by the
// command's first argument.
func setup(c *cli.Context) (decodePolicy, zerolog.Logger, *os.File, error) {
	policy, err := resolvePolicy(c)
	if err != nil {
		return decodePolicy{}, zerolog.Logger{}, nil, err
	}
	logger := initLogger(policy.LogLevel)

	if c.NArg() < 1 {
		return decodePolicy{}, zerolog.Logger{}, nil, cli.Exit("input file required", 1)
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return decodePolicy{}, zerolog.Logger{}, nil, err
	}
	return policy, logger, f, nil
}

func chunksCommand() *cli.Command {
	return &cli.Command{
		Name:      "chunks",
		Usage:     "List the chunk records of a PNG file",
		ArgsUsage: "<file>",
		Action:    chunksAction,
	}
}

func chunksAction(c *cli.Context) error {
	policy, logger, f, err := setup(c)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := imgdemux.NewChunkDecoderWithOptions(f, policy.ChunkOptions())
	if _, err := dec.ReadSignature(); err != nil {
		return err
	}
	logger.Debug().Str("file", f.Name()).Msg("signature ok")

	for dec.State() != imgdemux.ChunkStateTrailer {
		chunk, err := dec.ReadChunk()
		if err == io.EOF {
			break
		}
		var crcErr *imgdemux.CRCError
		if errors.As(err, &crcErr) {
			logger.Warn().
				Stringer("kind", crcErr.Kind).
				Uint32("stored", crcErr.Stored).
				Uint32("computed", crcErr.Computed).
				Int64("skip", crcErr.Skip).
				Msg("crc mismatch, resynchronizing")
			continue
		}
		if err != nil {
			return err
		}

		fmt.Printf("%4d  %s  length=%-8d offset=%-10d crc=%08x\n",
			chunk.Index, chunk.Kind, chunk.Length, chunk.Offset, chunk.StoredCRC())
	}
	return nil
}

func headerCommand() *cli.Command {
	return &cli.Command{
		Name:      "header",
		Usage:     "Print the parsed header of a Netpbm or PNG file",
		ArgsUsage: "<file>",
		Action:    headerAction,
	}
}

// sniffPNG reports whether the file starts with the PNG signature, then
// rewinds.
func sniffPNG(f *os.File) (bool, error) {
	var first [1]byte
	if _, err := f.Read(first[:]); err != nil {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return first[0] == 0x89, nil
}

func headerAction(c *cli.Context) error {
	_, logger, f, err := setup(c)
	if err != nil {
		return err
	}
	defer f.Close()

	isPNG, err := sniffPNG(f)
	if err != nil {
		return err
	}

	if isPNG {
		meta, err := imgdemux.ReadImageMeta(f)
		if err != nil {
			return err
		}
		logger.Debug().Msg("parsed PNG header chunk")
		fmt.Printf("PNG %dx%d %s, %d-bit, interlace=%d\n",
			meta.Width, meta.Height, meta.Color, meta.Depth, meta.Interlace)
		return nil
	}

	dec := imgdemux.NewTextDecoder(f)
	if _, err := dec.ReadSignature(); err != nil {
		return err
	}
	hdr, err := dec.ReadHeader()
	if err != nil {
		return err
	}
	logger.Debug().Msg("parsed text header")
	fmt.Printf("%s %dx%d depth=%d maxval=%d tuple=%s\n",
		hdr.Format, hdr.Width, hdr.Height, hdr.Depth, hdr.Maxval, hdr.Tuple)
	return nil
}

func dataCommand() *cli.Command {
	return &cli.Command{
		Name:      "data",
		Usage:     "Locate the pixel payload and report its extent",
		ArgsUsage: "<file>",
		Action:    dataAction,
	}
}

func dataAction(c *cli.Context) error {
	policy, logger, f, err := setup(c)
	if err != nil {
		return err
	}
	defer f.Close()

	isPNG, err := sniffPNG(f)
	if err != nil {
		return err
	}

	if isPNG {
		dec := imgdemux.NewChunkDecoderWithOptions(f, policy.ChunkOptions())
		var chunks []imgdemux.Chunk
		for elem := range dec.Elements() {
			if elem.Kind == imgdemux.ElementChunk {
				chunks = append(chunks, elem.Chunk)
			}
		}
		if err := dec.Err(); err != nil {
			return err
		}

		data := imgdemux.DataChunks(chunks)
		var total uint64
		for _, chunk := range data {
			total += uint64(chunk.Length)
		}
		logger.Debug().Int("chunks", len(data)).Msg("located data chunks")

		pixels, err := imgdemux.InflateImageData(f, chunks)
		if err != nil {
			return err
		}
		fmt.Printf("compressed: %d bytes in %d chunks, inflated: %d bytes\n",
			total, len(data), len(pixels))
		return nil
	}

	dec := imgdemux.NewTextDecoder(f)
	var data imgdemux.Data
	for elem := range dec.Elements() {
		if elem.Kind == imgdemux.ElementData {
			data = elem.Data
		}
	}
	if err := dec.Err(); err != nil {
		return err
	}
	fmt.Printf("pixel data: offset=%d length=%d\n", data.Offset, data.Length)
	return nil
}
