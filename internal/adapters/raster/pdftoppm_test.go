package raster

import (
	"context"
	"errors"
	"testing"

	"github.com/samirrijal/siteintel/internal/core/ports"
)

var _ ports.Rasterizer = (*Pdftoppm)(nil)

func TestRasterizeFirstPage_ToolMissing(t *testing.T) {
	r := New("siteintel-no-such-pdftoppm", 0)
	if r.Available() {
		t.Skip("unexpected binary on PATH")
	}
	if _, err := r.RasterizeFirstPage(context.Background(), []byte("%PDF-1.4")); !errors.Is(err, ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
}

func TestRasterizeFirstPage_InvalidPDF(t *testing.T) {
	r := New("", 0)
	if !r.Available() {
		t.Skip("pdftoppm not installed")
	}
	if _, err := r.RasterizeFirstPage(context.Background(), []byte("not a pdf")); err == nil {
		t.Fatal("expected an error for garbage input")
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New("", 0)
	if r.bin != "pdftoppm" || r.dpi != DefaultDPI {
		t.Errorf("unexpected defaults %+v", r)
	}
}
