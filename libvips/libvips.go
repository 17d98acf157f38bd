// Package libvips implements vipsfit.Engine on top of libvips.
package libvips

import (
	"strings"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/szxp/vipsfit"
)

var (
	startOnce sync.Once
	shared    *Engine
)

type Config struct {
	Logger hclog.Logger

	// Concurrency is the initial worker count; zero lets libvips decide.
	Concurrency int

	MaxCacheMem   int
	MaxCacheSize  int
	MaxCacheFiles int
}

type Engine struct {
	logger hclog.Logger
}

// New starts libvips on first use and returns the engine bound to it. Later
// calls return the same engine and ignore conf, since libvips state is
// process-wide.
func New(conf Config) *Engine {
	startOnce.Do(func() {
		if conf.Logger == nil {
			conf.Logger = hclog.NewNullLogger()
		}
		shared = &Engine{logger: conf.Logger}
		vips.LoggingSettings(shared.logVips, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: conf.Concurrency,
			MaxCacheMem:      conf.MaxCacheMem,
			MaxCacheSize:     conf.MaxCacheSize,
			MaxCacheFiles:    conf.MaxCacheFiles,
		})
		shared.logger.Info("libvips started", "version", version())
	})
	return shared
}

// Shutdown stops libvips. No engine may be used afterwards.
func Shutdown() {
	vips.Shutdown()
}

func Version() string {
	return version()
}

func (e *Engine) logVips(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		e.logger.Error(msg, "domain", domain)
	case vips.LogLevelWarning:
		e.logger.Warn(msg, "domain", domain)
	case vips.LogLevelDebug:
		e.logger.Debug(msg, "domain", domain)
	default:
		e.logger.Info(msg, "domain", domain)
	}
}

type image struct {
	ref *vips.ImageRef
}

func (i *image) Width() int  { return i.ref.Width() }
func (i *image) Height() int { return i.ref.Height() }

func (i *image) Format() vipsfit.Format {
	return formatOf(i.ref.Format())
}

func (i *image) Release() {
	i.ref.Close()
}

func formatOf(t vips.ImageType) vipsfit.Format {
	switch t {
	case vips.ImageTypeJPEG:
		return vipsfit.FormatJpeg
	case vips.ImageTypePNG:
		return vipsfit.FormatPng
	case vips.ImageTypeWEBP:
		return vipsfit.FormatWebp
	case vips.ImageTypeAVIF:
		return vipsfit.FormatAvif
	case vips.ImageTypeSVG:
		return vipsfit.FormatSvg
	case vips.ImageTypeGIF:
		return vipsfit.FormatGif
	case vips.ImageTypePDF:
		return vipsfit.FormatPdf
	case vips.ImageTypeTIFF:
		return vipsfit.FormatTiff
	case vips.ImageTypeHEIF:
		return vipsfit.FormatHeif
	}
	return vipsfit.FormatUnknown
}

func importParams(pages *vipsfit.PageRange) *vips.ImportParams {
	params := vips.NewImportParams()
	params.Page.Set(pages.First)
	n := pages.Count
	if n <= 0 {
		n = -1
	}
	params.NumPages.Set(n)
	return params
}

func (e *Engine) OpenFile(path string, pages *vipsfit.PageRange) (vipsfit.Image, error) {
	var (
		ref *vips.ImageRef
		err error
	)
	if pages != nil {
		ref, err = vips.LoadImageFromFile(path, importParams(pages))
	} else {
		ref, err = vips.NewImageFromFile(path)
	}
	if err != nil {
		return nil, vipsError(err)
	}
	return &image{ref: ref}, nil
}

func (e *Engine) OpenBuffer(buf []byte, pages *vipsfit.PageRange) (vipsfit.Image, error) {
	var (
		ref *vips.ImageRef
		err error
	)
	if pages != nil {
		ref, err = vips.LoadImageFromBuffer(buf, importParams(pages))
	} else {
		ref, err = vips.NewImageFromBuffer(buf)
	}
	if err != nil {
		return nil, vipsError(err)
	}
	return &image{ref: ref}, nil
}

// derive copies src and applies op to the copy, leaving src untouched.
func derive(src vipsfit.Image, op func(ref *vips.ImageRef) error) (vipsfit.Image, error) {
	in, err := refOf(src)
	if err != nil {
		return nil, err
	}
	out, err := in.Copy()
	if err != nil {
		return nil, vipsError(err)
	}
	if err := op(out); err != nil {
		out.Close()
		return nil, vipsError(err)
	}
	return &image{ref: out}, nil
}

// vipsError keeps the libvips message and drops the Go stack trace govips
// appends to it.
func vipsError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if i := strings.Index(msg, "\nStack:"); i >= 0 {
		msg = msg[:i]
	}
	return errors.New(strings.TrimSpace(msg))
}

func refOf(img vipsfit.Image) (*vips.ImageRef, error) {
	i, ok := img.(*image)
	if !ok || i.ref == nil {
		return nil, errors.Errorf("not a libvips image: %T", img)
	}
	return i.ref, nil
}

func (e *Engine) Resize(img vipsfit.Image, scale float64) (vipsfit.Image, error) {
	return derive(img, func(ref *vips.ImageRef) error {
		return ref.Resize(scale, vips.KernelAuto)
	})
}

func (e *Engine) Crop(img vipsfit.Image, left, top, width, height int) (vipsfit.Image, error) {
	return derive(img, func(ref *vips.ImageRef) error {
		return ref.ExtractArea(left, top, width, height)
	})
}

func (e *Engine) SmartCrop(img vipsfit.Image, width, height int) (vipsfit.Image, error) {
	return derive(img, func(ref *vips.ImageRef) error {
		return ref.SmartCrop(width, height, vips.InterestingAttention)
	})
}

func (e *Engine) Encode(img vipsfit.Image, opts vipsfit.CodecOptions) ([]byte, error) {
	src, err := refOf(img)
	if err != nil {
		return nil, err
	}

	switch o := opts.(type) {
	case vipsfit.JpegOptions:
		return export(src, o.Background, func(ref *vips.ImageRef) ([]byte, *vips.ImageMetadata, error) {
			return ref.ExportJpeg(&vips.JpegExportParams{
				Quality:        o.Quality,
				StripMetadata:  o.Strip,
				Interlace:      o.Interlace,
				OptimizeCoding: o.OptimizeCoding,
				OptimizeScans:  o.OptimizeScans,
			})
		})
	case vipsfit.PngOptions:
		return export(src, o.Background, func(ref *vips.ImageRef) ([]byte, *vips.ImageMetadata, error) {
			return ref.ExportPng(&vips.PngExportParams{
				Quality:       o.Quality,
				Compression:   o.Compression,
				StripMetadata: o.Strip,
				Interlace:     o.Interlace,
			})
		})
	case vipsfit.WebpOptions:
		return export(src, o.Background, func(ref *vips.ImageRef) ([]byte, *vips.ImageMetadata, error) {
			return ref.ExportWebp(&vips.WebpExportParams{
				Quality:       o.Quality,
				StripMetadata: o.Strip,
			})
		})
	case vipsfit.AvifOptions:
		return export(src, o.Background, func(ref *vips.ImageRef) ([]byte, *vips.ImageMetadata, error) {
			return ref.ExportAvif(&vips.AvifExportParams{
				Quality:       o.Quality,
				StripMetadata: o.Strip,
			})
		})
	}
	return nil, errors.Errorf("no encoder for %T", opts)
}

// export flattens alpha onto background, when one is given, before encoding.
func export(src *vips.ImageRef, background []float64, fn func(ref *vips.ImageRef) ([]byte, *vips.ImageMetadata, error)) ([]byte, error) {
	ref := src
	if len(background) > 0 && src.HasAlpha() {
		cp, err := src.Copy()
		if err != nil {
			return nil, vipsError(err)
		}
		defer cp.Close()
		if err := cp.Flatten(color(background)); err != nil {
			return nil, vipsError(err)
		}
		ref = cp
	}

	buf, _, err := fn(ref)
	if err != nil {
		return nil, vipsError(err)
	}
	return buf, nil
}

func color(bg []float64) *vips.Color {
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
	return &vips.Color{R: c[0], G: c[1], B: c[2]}
}

func (e *Engine) EncodeFile(img vipsfit.Image, path string, opts vipsfit.CodecOptions) error {
	buf, err := e.Encode(img, opts)
	if err != nil {
		return err
	}
	return vipsfit.WriteFile(path, buf)
}

func (e *Engine) LastError() string {
	return readAndClearError()
}

func (e *Engine) SetConcurrency(n int) {
	setConcurrency(n)
}
