package worker

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"image-platform/internal/models"
)

var watermarkFont *truetype.Font

func init() {
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		panic(fmt.Sprintf("worker: parse embedded font: %v", err))
	}
	watermarkFont = f
}

type renderOptions struct {
	width, height int
	quality       int
	watermark     string
}

// render decodes src and produces the derived artifact as a JPEG data URI.
func render(src io.Reader, opts renderOptions) (string, error) {
	const op = "worker.render"

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%s: decode: %w", op, err)
	}

	thumb := imaging.Thumbnail(img, opts.width, opts.height, imaging.Lanczos)

	if opts.watermark != "" {
		if thumb, err = drawWatermark(thumb, opts.watermark); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(opts.quality)); err != nil {
		return "", fmt.Errorf("%s: encode: %w", op, err)
	}
	return models.DataURI("image/jpeg", buf.Bytes()), nil
}

// drawWatermark writes text into the bottom-left corner, scaled to the image height.
func drawWatermark(img *image.NRGBA, text string) (*image.NRGBA, error) {
	bounds := img.Bounds()
	size := float64(bounds.Dy()) / 12
	if size < 8 {
		size = 8
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(watermarkFont)
	ctx.SetFontSize(size)
	ctx.SetClip(bounds)
	ctx.SetDst(img)
	ctx.SetSrc(image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 160}))

	pt := freetype.Pt(bounds.Min.X+4, bounds.Max.Y-4)
	if _, err := ctx.DrawString(text, pt); err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	return img, nil
}
