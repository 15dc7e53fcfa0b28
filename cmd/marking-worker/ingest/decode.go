package ingest

import (
	"fmt"
	"image"
	"os"

	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	xdraw "golang.org/x/image/draw"
)

// Decoder extracts the marking symbol text from a rendered page image
type Decoder interface {
	Decode(imgPath string) (string, error)
}

// DataMatrixDecoder reads GS1 DataMatrix symbols. High-DPI renders
// occasionally defeat the detector, so decoding retries on progressively
// downscaled copies.
type DataMatrixDecoder struct {
	reader gozxing.Reader
}

// NewDataMatrixDecoder creates a DataMatrix decoder
func NewDataMatrixDecoder() *DataMatrixDecoder {
	return &DataMatrixDecoder{reader: datamatrix.NewDataMatrixReader()}
}

// Decode returns the symbol text of the image
func (d *DataMatrixDecoder) Decode(imgPath string) (string, error) {
	f, err := os.Open(imgPath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	var lastErr error
	for _, divisor := range []int{1, 2, 4} {
		candidate := img
		if divisor > 1 {
			candidate = downscale(img, divisor)
		}

		bmp, err := gozxing.NewBinaryBitmapFromImage(candidate)
		if err != nil {
			lastErr = err
			continue
		}

		result, err := d.reader.Decode(bmp, hints)
		if err == nil {
			return result.GetText(), nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("no DataMatrix symbol detected: %w", lastErr)
}

func downscale(img image.Image, divisor int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx() / divisor
	h := bounds.Dy() / divisor
	if w < 1 || h < 1 {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}
