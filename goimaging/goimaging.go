// Package goimaging implements vipsfit.Engine in Go, without libvips.
// Decoding covers JPEG, PNG, GIF, TIFF, BMP and WebP; PDF pages are rendered
// with MuPDF. JPEG, PNG and WebP can be encoded.
package goimaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/szxp/vipsfit"
)

type Config struct {
	Logger hclog.Logger

	// Filter is the resampling filter; Lanczos when nil.
	Filter *imaging.ResampleFilter
}

type Engine struct {
	logger hclog.Logger
	filter imaging.ResampleFilter
	gate   *gate
}

func New(conf Config) *Engine {
	if conf.Logger == nil {
		conf.Logger = hclog.NewNullLogger()
	}
	filter := imaging.Lanczos
	if conf.Filter != nil {
		filter = *conf.Filter
	}
	return &Engine{
		logger: conf.Logger,
		filter: filter,
		gate:   newGate(0),
	}
}

type picture struct {
	img    image.Image
	format vipsfit.Format
}

func (p *picture) Width() int             { return p.img.Bounds().Dx() }
func (p *picture) Height() int            { return p.img.Bounds().Dy() }
func (p *picture) Format() vipsfit.Format { return p.format }

func (p *picture) Release() {
	p.img = nil
}

func pictureOf(img vipsfit.Image) (*picture, error) {
	p, ok := img.(*picture)
	if !ok || p.img == nil {
		return nil, errors.Errorf("not a goimaging image: %T", img)
	}
	return p, nil
}

func (e *Engine) OpenFile(path string, pages *vipsfit.PageRange) (vipsfit.Image, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	return e.OpenBuffer(buf, pages)
}

func (e *Engine) OpenBuffer(buf []byte, pages *vipsfit.PageRange) (vipsfit.Image, error) {
	defer e.gate.enter()()

	format := detectFormat(buf)
	switch format {
	case vipsfit.FormatPdf:
		img, err := renderPDF(buf, pages)
		if err != nil {
			return nil, err
		}
		return &picture{img: img, format: format}, nil
	case vipsfit.FormatSvg, vipsfit.FormatAvif, vipsfit.FormatHeif:
		return nil, errors.Errorf("cannot decode %s images", format)
	}

	if pages != nil && (pages.First != 0 || pages.Count > 1) {
		return nil, errors.Errorf("%s images have a single page", format)
	}

	var (
		img image.Image
		err error
	)
	if format == vipsfit.FormatWebp {
		img, err = webp.Decode(bytes.NewReader(buf))
	} else {
		img, err = imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", format)
	}
	return &picture{img: img, format: format}, nil
}

func (e *Engine) Resize(img vipsfit.Image, scale float64) (vipsfit.Image, error) {
	p, err := pictureOf(img)
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, errors.Errorf("invalid scale %v", scale)
	}
	defer e.gate.enter()()

	w := scaled(p.Width(), scale)
	h := scaled(p.Height(), scale)
	return &picture{img: imaging.Resize(p.img, w, h, e.filter), format: p.format}, nil
}

func (e *Engine) Crop(img vipsfit.Image, left, top, width, height int) (vipsfit.Image, error) {
	p, err := pictureOf(img)
	if err != nil {
		return nil, err
	}
	b := p.img.Bounds()
	rect := image.Rect(left, top, left+width, top+height).Add(b.Min)
	if width <= 0 || height <= 0 || !rect.In(b) {
		return nil, errors.Errorf("bad extract area %dx%d+%d+%d in %dx%d", width, height, left, top, b.Dx(), b.Dy())
	}
	defer e.gate.enter()()

	return &picture{img: imaging.Crop(p.img, rect), format: p.format}, nil
}

func (e *Engine) SmartCrop(img vipsfit.Image, width, height int) (vipsfit.Image, error) {
	p, err := pictureOf(img)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 || width > p.Width() || height > p.Height() {
		return nil, errors.Errorf("bad smartcrop size %dx%d in %dx%d", width, height, p.Width(), p.Height())
	}
	defer e.gate.enter()()

	left, top := attention(p.img, width, height)
	rect := image.Rect(left, top, left+width, top+height).Add(p.img.Bounds().Min)
	return &picture{img: imaging.Crop(p.img, rect), format: p.format}, nil
}

func (e *Engine) Encode(img vipsfit.Image, opts vipsfit.CodecOptions) ([]byte, error) {
	p, err := pictureOf(img)
	if err != nil {
		return nil, err
	}
	defer e.gate.enter()()

	var buf bytes.Buffer
	switch o := opts.(type) {
	case vipsfit.JpegOptions:
		// JPEG has no alpha channel; flatten onto the background, white by default.
		bg := o.Background
		if len(bg) == 0 {
			bg = []float64{255}
		}
		err = imaging.Encode(&buf, flatten(p.img, bg), imaging.JPEG, imaging.JPEGQuality(o.Quality))
	case vipsfit.PngOptions:
		err = imaging.Encode(&buf, flatten(p.img, o.Background), imaging.PNG,
			imaging.PNGCompressionLevel(pngCompression(o.Compression)))
	case vipsfit.WebpOptions:
		err = webp.Encode(&buf, flatten(p.img, o.Background), &webp.Options{Quality: float32(o.Quality)})
	default:
		return nil, errors.Errorf("cannot encode %s images", opts.Format())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", opts.Format())
	}
	return buf.Bytes(), nil
}

func (e *Engine) EncodeFile(img vipsfit.Image, path string, opts vipsfit.CodecOptions) error {
	buf, err := e.Encode(img, opts)
	if err != nil {
		return err
	}
	return vipsfit.WriteFile(path, buf)
}

// LastError is always empty: every failure is reported by the returned error.
func (e *Engine) LastError() string {
	return ""
}

func (e *Engine) SetConcurrency(n int) {
	e.gate.resize(n)
	e.logger.Debug("Concurrency set", "n", n)
}

func scaled(n int, scale float64) int {
	v := int(float64(n)*scale + 0.5)
	if v < 1 {
		v = 1
	}
	return v
}

// flatten composes img over a solid background. Without a background img is
// returned unchanged.
func flatten(img image.Image, bg []float64) image.Image {
	if len(bg) == 0 {
		return img
	}
	c := make([]uint8, 3)
	for i := range c {
		v := bg[0]
		if i < len(bg) {
			v = bg[i]
		}
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		c[i] = uint8(v)
	}
	b := img.Bounds()
	dst := imaging.New(b.Dx(), b.Dy(), color.NRGBA{R: c[0], G: c[1], B: c[2], A: 255})
	return imaging.Overlay(dst, img, image.Pt(0, 0), 1.0)
}

func pngCompression(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	}
	return png.BestCompression
}
