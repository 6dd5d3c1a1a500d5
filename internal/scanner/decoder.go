package scanner

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder extracts the text of a code from a frame.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewQRDecoder(tryHarder bool) *QRDecoder {
	hints := map[gozxing.DecodeHintType]interface{}{}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return &QRDecoder{hints: hints}
}

func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	// QRCodeReader is not documented as goroutine safe.
	result, err := zxqr.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}

// Region is the detection box centered in each frame.
type Region struct {
	Width  int `json:"width" validate:"min=0"`
	Height int `json:"height" validate:"min=0"`
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the centered region of img. Frames smaller than the region,
// a zero region, or images without SubImage are returned unchanged.
func (r Region) Crop(img image.Image) image.Image {
	if r.Width <= 0 || r.Height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= r.Width && b.Dy() <= r.Height {
		return img
	}
	si, ok := img.(subImager)
	if !ok {
		return img
	}
	w, h := min(r.Width, b.Dx()), min(r.Height, b.Dy())
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	return si.SubImage(image.Rect(x0, y0, x0+w, y0+h))
}
