package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/sellerhub/marking/common/logger"
)

// Rasterizer turns a source document into per-page artifacts and renders
// single pages into images ready for symbol decoding
type Rasterizer interface {
	// PreparePages splits the document into per-page PDFs under workDir.
	// An existing workDir is reused as-is: pages already consumed by a
	// previous run are simply absent from the result.
	PreparePages(ctx context.Context, docPath, workDir string) ([]string, error)

	// RenderPage rasterizes one page PDF and returns the image path
	RenderPage(ctx context.Context, pagePDF string) (string, error)
}

// PopplerRasterizer shells out to the poppler toolchain (pdfcrop,
// pdfseparate, pdftoppm)
type PopplerRasterizer struct {
	log      *logger.Logger
	dpi      int
	borderPx int
}

// NewPopplerRasterizer creates a poppler-based rasterizer
func NewPopplerRasterizer(log *logger.Logger, dpi, borderPx int) *PopplerRasterizer {
	return &PopplerRasterizer{log: log, dpi: dpi, borderPx: borderPx}
}

// PreparePages splits the document into page_NNNN.pdf files
func (r *PopplerRasterizer) PreparePages(ctx context.Context, docPath, workDir string) ([]string, error) {
	if _, err := os.Stat(workDir); err == nil {
		// retry of a partially processed document
		return listPages(workDir)
	}

	if _, err := os.Stat(docPath); err != nil {
		return nil, fmt.Errorf("source document unavailable: %w", err)
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	// Crop surrounding whitespace first; a failed crop is not fatal, the
	// original document is split instead.
	source := docPath
	cropped := filepath.Join(workDir, "cropped.pdf")
	if err := runTool(ctx, "pdfcrop", "--margins", "10", docPath, cropped); err != nil {
		r.log.Warn("pdfcrop failed, splitting uncropped document", "doc", docPath, "error", err)
	} else {
		source = cropped
	}

	if err := runTool(ctx, "pdfseparate", source, filepath.Join(workDir, "page_%04d.pdf")); err != nil {
		// leave no half-built work dir behind, the retry must split again
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			r.log.Warn("failed to clean up work dir", "dir", workDir, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to split document: %w", err)
	}

	if source == cropped {
		_ = os.Remove(cropped)
	}

	return listPages(workDir)
}

// RenderPage rasterizes the page at high resolution and overlays a
// fixed-width quiet-zone border. Overlay failure is tolerated: decoding an
// unbordered render beats losing the page.
func (r *PopplerRasterizer) RenderPage(ctx context.Context, pagePDF string) (string, error) {
	outPrefix := strings.TrimSuffix(pagePDF, ".pdf")

	err := runTool(ctx, "pdftoppm",
		"-r", strconv.Itoa(r.dpi),
		"-png",
		"-singlefile",
		pagePDF,
		outPrefix,
	)
	if err != nil {
		return "", fmt.Errorf("failed to rasterize page: %w", err)
	}

	imgPath := outPrefix + ".png"
	if err := overlayBorder(imgPath, r.borderPx); err != nil {
		r.log.Warn("border overlay failed, using raw render", "page", pagePDF, "error", err)
	}

	return imgPath, nil
}

// overlayBorder redraws the image centered on a white canvas extended by
// width pixels on each side
func overlayBorder(imgPath string, width int) error {
	if width <= 0 {
		return nil
	}

	f, err := os.Open(imgPath)
	if err != nil {
		return fmt.Errorf("failed to open render: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode render: %w", err)
	}

	bounds := img.Bounds()
	dc := gg.NewContext(bounds.Dx()+2*width, bounds.Dy()+2*width)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(img, width, width)

	if err := dc.SavePNG(imgPath); err != nil {
		return fmt.Errorf("failed to save bordered render: %w", err)
	}

	return nil
}

// HashFile returns the hex sha256 of a file's content
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func listPages(workDir string) ([]string, error) {
	pages, err := filepath.Glob(filepath.Join(workDir, "page_*.pdf"))
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	sort.Strings(pages)
	return pages, nil
}

func runTool(ctx context.Context, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(callCtx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w; stderr=%s", name, err, s)
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}
