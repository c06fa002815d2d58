// Package imaging turns an operator-selected image file into an inline data
// URI payload: pre-checks at selection time, then compress and encode at
// submit time.
package imaging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxUploadSize is the largest file accepted at selection time (5 MiB).
	MaxUploadSize = 5 << 20

	// DefaultMaxPixels bounds the decoded size of an image (40 MP).
	DefaultMaxPixels = 40_000_000
)

var (
	ErrUnsupportedMedia = errors.New("please upload an image file")
	ErrPayloadTooLarge  = errors.New("image must be smaller than 5MB")
	ErrTooManyPixels    = errors.New("image dimensions too large")
)

// File is a selected upload: its declared media type and raw bytes.
type File struct {
	Name string
	Type string
	Data []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Options bounds the compressed output.
type Options struct {
	// MaxDimension caps both width and height in pixels.
	MaxDimension int
	// MaxSize is the target encoded size in bytes. Best effort.
	MaxSize int64
	// MaxPixels caps width*height of the source before it is decoded.
	MaxPixels int64
}

// DefaultOptions returns 1024px, 0.5 MB and 40 MP.
func DefaultOptions() Options {
	return Options{MaxDimension: 1024, MaxSize: 512 << 10, MaxPixels: DefaultMaxPixels}
}

// Compressor shrinks an image to fit Options.
type Compressor interface {
	Compress(ctx context.Context, f File, opts Options) (File, error)
}

// ProcessingError reports a compression or encoding failure with its cause.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("failed to process image: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Check validates a selection before any processing: the declared type must
// be image/* and the size at most MaxUploadSize.
func Check(f File) error {
	if !strings.HasPrefix(strings.ToLower(f.Type), "image/") {
		return fmt.Errorf("%w: %q", ErrUnsupportedMedia, f.Type)
	}
	if f.Size() > MaxUploadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, f.Size())
	}
	return nil
}

// Preview returns a data URI of the raw selection for immediate display.
func Preview(f File) string {
	return DataURI(f.Type, f.Data)
}

// DataURI encodes data as a self-describing base64 data URI.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Pipeline compresses a file and encodes the result.
type Pipeline struct {
	compressor Compressor
	opts       Options
}

// NewPipeline creates a pipeline. A nil compressor uses Resampler.
func NewPipeline(compressor Compressor, opts Options) *Pipeline {
	if compressor == nil {
		compressor = Resampler{}
	}
	if opts.MaxDimension <= 0 || opts.MaxSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	return &Pipeline{compressor: compressor, opts: opts}
}

// Process turns f into a data URI. Selection checks are repeated so an
// oversized or non-image file never reaches the compressor.
func (p *Pipeline) Process(ctx context.Context, f File) (string, error) {
	if err := Check(f); err != nil {
		return "", err
	}

	out, err := p.compressor.Compress(ctx, f, p.opts)
	if err != nil {
		return "", &ProcessingError{Err: err}
	}
	if len(out.Data) == 0 {
		return "", &ProcessingError{Err: errors.New("compressor returned no data")}
	}
	if out.Type == "" {
		out.Type = f.Type
	}
	return DataURI(out.Type, out.Data), nil
}
