package vipsfit

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// SaveSpec holds the encode parameters of a request.
type SaveSpec struct {
	Quality     uint8
	Strip       bool
	Compression uint8
	Background  []float64
	Format      Format
}

const (
	defaultJpegQuality    = 75
	defaultWebpQuality    = 75
	defaultAvifQuality    = 50
	defaultPngQuality     = 100
	defaultPngCompression = 6
)

// FormatDispatcher resolves the output codec and drives the engine encoders.
type FormatDispatcher struct {
	engine   Engine
	reporter *ErrorReporter
}

func NewFormatDispatcher(engine Engine, reporter *ErrorReporter) *FormatDispatcher {
	return &FormatDispatcher{engine: engine, reporter: reporter}
}

// Resolve turns FormatAuto into the detected source format. The result is
// always an encode target.
func (d *FormatDispatcher) Resolve(requested Format, h *ImageHandle) (Format, error) {
	f := requested
	if f == FormatAuto {
		f = h.Format()
	}
	if !f.Encodable() {
		return FormatUnknown, errUnsupportedFormat()
	}
	return f, nil
}

func (d *FormatDispatcher) EncodeToBytes(h *ImageHandle, spec SaveSpec) ([]byte, error) {
	out, _, err := d.encode(h, spec)
	return out, err
}

// encode is EncodeToBytes, also returning the format auto resolved to.
func (d *FormatDispatcher) encode(h *ImageHandle, spec SaveSpec) ([]byte, Format, error) {
	f, err := d.Resolve(spec.Format, h)
	if err != nil {
		return nil, FormatUnknown, err
	}

	var out []byte
	switch {
	case passthrough(h, f):
		out, err = rawSource(h)
	case f == FormatSvg:
		out, err = d.wrapSvg(h, spec)
	default:
		opts := codecOptions(f, spec)
		err = d.reporter.call(KindSave, func() (err error) {
			out, err = d.engine.Encode(h.img, opts)
			return err
		})
	}
	if err != nil {
		return nil, FormatUnknown, err
	}
	return out, f, nil
}

func (d *FormatDispatcher) EncodeToPath(h *ImageHandle, path string, spec SaveSpec) error {
	if path == "" {
		return newError(KindParseInput, "empty output path")
	}
	f, err := d.Resolve(spec.Format, h)
	if err != nil {
		return err
	}

	if passthrough(h, f) {
		if src, ok := h.origin.Path(); ok && samePath(src, path) {
			return nil
		}
		raw, err := rawSource(h)
		if err != nil {
			return err
		}
		return writeOutput(path, raw)
	}
	if f == FormatSvg {
		out, err := d.wrapSvg(h, spec)
		if err != nil {
			return err
		}
		return writeOutput(path, out)
	}

	opts := codecOptions(f, spec)
	return d.reporter.call(KindSave, func() error {
		return d.engine.EncodeFile(h.img, path, opts)
	})
}

// passthrough reports whether the source bytes already are the requested
// output.
func passthrough(h *ImageHandle, f Format) bool {
	return h.rawPassthrough() && f == h.Format()
}

func rawSource(h *ImageHandle) ([]byte, error) {
	raw, err := h.origin.Raw()
	if err != nil {
		return nil, &Error{Kind: KindSave, Message: err.Error(), cause: err}
	}
	return raw, nil
}

// wrapSvg embeds a raster encode of h inside a minimal SVG document.
func (d *FormatDispatcher) wrapSvg(h *ImageHandle, spec SaveSpec) ([]byte, error) {
	raster := h.Format()
	if raster == FormatSvg || !raster.Encodable() {
		raster = FormatPng
	}

	opts := codecOptions(raster, spec)
	var out []byte
	err := d.reporter.call(KindSave, func() (err error) {
		out, err = d.engine.Encode(h.img, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return svgDocument(h.Width(), h.Height(), raster, out), nil
}

func svgDocument(width, height int, raster Format, data []byte) []byte {
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<image width="%d" height="%d" xlink:href="data:%s;base64,%s"/></svg>`,
		width, height, width, height, width, height,
		raster.MIME(), base64.StdEncoding.EncodeToString(data),
	))
}

func codecOptions(f Format, spec SaveSpec) CodecOptions {
	q := int(spec.Quality)
	switch f {
	case FormatJpeg:
		return JpegOptions{
			Quality:        withDefault(q, defaultJpegQuality),
			Strip:          spec.Strip,
			Interlace:      true,
			OptimizeCoding: true,
			OptimizeScans:  true,
			Background:     spec.Background,
		}
	case FormatPng:
		c := int(spec.Compression)
		if c == 0 {
			c = defaultPngCompression
		}
		return PngOptions{
			Quality:     withDefault(q, defaultPngQuality),
			Compression: c,
			Strip:       spec.Strip,
			Interlace:   true,
			Background:  spec.Background,
		}
	case FormatWebp:
		return WebpOptions{
			Quality:    withDefault(q, defaultWebpQuality),
			Strip:      spec.Strip,
			Background: spec.Background,
		}
	case FormatAvif:
		return AvifOptions{
			Quality:    withDefault(q, defaultAvifQuality),
			Strip:      spec.Strip,
			Background: spec.Background,
		}
	}
	return nil
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

func writeOutput(path string, data []byte) error {
	if err := WriteFile(path, data); err != nil {
		return &Error{Kind: KindSave, Message: err.Error(), cause: err}
	}
	return nil
}

// WriteFile writes data to a temporary file next to path and renames it
// into place, so readers never observe a partial image.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+ulid.Make().String()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}
