package authserver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"kite-agent/lib/textutil"
)

// CaptchaSolver turns a captcha image into the code it shows. Login
// tests plug in a canned solver, production uses Tesseract.
type CaptchaSolver interface {
	Solve(ctx context.Context, img []byte) (string, error)
}

// TesseractSolver runs the captcha through ocr after flattening it to
// black and white, which strips the noise lines the portal draws over
// the digits.
type TesseractSolver struct{}

func (TesseractSolver) Solve(ctx context.Context, img []byte) (string, error) {
	cleaned, err := binarize(img)
	if err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetWhitelist("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(cleaned); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return textutil.NormalizeCode(text), nil
}

// binarize thresholds the image on luma. The captcha is dark glyphs on
// a light background, so anything below mid-gray is glyph.
func binarize(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			luma := (299*r + 587*g + 114*b) / 1000
			if luma < 0x8000 {
				dst.SetGray(x, y, color.Gray{Y: 0})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
