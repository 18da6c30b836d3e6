package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// GoDecoder decodes PNG, JPEG, GIF, TIFF, BMP and WebP without cgo. Rasters
// keep the encoded payload so backends that decode on their own can reuse it.
type GoDecoder struct {
	// MaxPixels rejects images larger than this many pixels. Zero disables
	// the limit.
	MaxPixels int
}

// ImageRaster is an RGBA raster produced by GoDecoder.
type ImageRaster struct {
	Img     *image.RGBA
	Encoded []byte
	Format  string
	src     ImageSource
}

func (r *ImageRaster) Width() int          { return r.Img.Bounds().Dx() }
func (r *ImageRaster) Height() int         { return r.Img.Bounds().Dy() }
func (r *ImageRaster) Source() ImageSource { return r.src }

// BytesPerPixel is always 4 for ImageRaster.
func (r *ImageRaster) BytesPerPixel() int { return 4 }

// BytesPerLine is the stride of Img.Pix.
func (r *ImageRaster) BytesPerLine() int { return r.Img.Stride }

// Destroy drops the pixel buffers.
func (r *ImageRaster) Destroy() {
	r.Img = nil
	r.Encoded = nil
}

func (d GoDecoder) DecodeBytes(buf []byte) (Raster, error) {
	src := FromBytes(buf)
	r, err := d.decode(buf, src)
	if err != nil {
		return nil, &ImageDecodeError{Source: src.String(), Err: err}
	}
	return r, nil
}

func (d GoDecoder) DecodeFile(path string) (Raster, error) {
	src := FromFile(path)
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &ImageDecodeError{Source: src.String(), Err: err}
	}
	if len(buf) == 0 {
		return nil, &ImageDecodeError{Source: src.String(), Err: fmt.Errorf("empty file")}
	}
	r, err := d.decode(buf, src)
	if err != nil {
		return nil, &ImageDecodeError{Source: src.String(), Err: err}
	}
	return r, nil
}

func (d GoDecoder) decode(buf []byte, src ImageSource) (*ImageRaster, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if d.MaxPixels > 0 && cfg.Width*cfg.Height > d.MaxPixels {
		return nil, fmt.Errorf("image of %dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return &ImageRaster{Img: rgba, Encoded: buf, Format: format, src: src}, nil
}
