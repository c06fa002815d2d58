package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// jpegQualities is tried in order until the output fits MaxSize.
var jpegQualities = []int{85, 75, 65, 55, 45, 35}

// Resampler is the default Compressor. It scales with Catmull-Rom so the
// longest side fits MaxDimension, keeps PNGs that already fit, and otherwise
// re-encodes as JPEG at descending quality until under MaxSize.
type Resampler struct{}

// Compress implements Compressor. The header is read first so an image whose
// dimensions exceed opts.MaxPixels is rejected without being decoded.
func (Resampler) Compress(ctx context.Context, f File, opts Options) (File, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	limit := opts.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > limit {
		return File{}, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	img := fit(src, opts.MaxDimension)
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	if format == "png" {
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return File{}, fmt.Errorf("failed to encode png: %w", err)
		}
		if int64(buf.Len()) <= opts.MaxSize {
			return File{Name: f.Name, Type: "image/png", Data: buf.Bytes()}, nil
		}
	}

	flat := flatten(img)
	var out []byte
	for _, q := range jpegQualities {
		if err := ctx.Err(); err != nil {
			return File{}, err
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: q}); err != nil {
			return File{}, fmt.Errorf("failed to encode jpeg: %w", err)
		}
		out = buf.Bytes()
		if int64(len(out)) <= opts.MaxSize {
			break
		}
	}
	return File{Name: f.Name, Type: "image/jpeg", Data: out}, nil
}

// fit scales src down so neither side exceeds limit. Smaller images are returned as is.
func fit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return src
	}

	if w >= h {
		h = max(1, h*limit/w)
		w = limit
	} else {
		w = max(1, w*limit/h)
		h = limit
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// flatten composites img over white, since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
