// Package raster renders PDF pages to images with poppler's pdftoppm.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultDPI balances OCR accuracy against image size.
const DefaultDPI = 200

// ErrToolMissing is returned when pdftoppm is not on PATH.
var ErrToolMissing = errors.New("pdftoppm not installed")

// Pdftoppm implements ports.Rasterizer.
type Pdftoppm struct {
	bin string
	dpi int
}

// New returns a rasterizer using bin, or "pdftoppm" from PATH.
func New(bin string, dpi int) *Pdftoppm {
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Pdftoppm{bin: bin, dpi: dpi}
}

// Available reports whether the binary can be found.
func (p *Pdftoppm) Available() bool {
	_, err := exec.LookPath(p.bin)
	return err == nil
}

// RasterizeFirstPage renders page one of pdf.
func (p *Pdftoppm) RasterizeFirstPage(ctx context.Context, pdf []byte) (image.Image, error) {
	if !p.Available() {
		return nil, ErrToolMissing
	}
	dir, err := os.MkdirTemp("", "siteintel-raster-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	outPrefix := filepath.Join(dir, "page")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.bin,
		"-png", "-f", "1", "-l", "1", "-r", fmt.Sprint(p.dpi), "-singlefile", in, outPrefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	f, err := os.Open(outPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("open rendered page: %w", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
