package vipsfit

// Image is one native image object held by an Engine. Images are immutable:
// every transforming engine call returns a new Image.
type Image interface {
	Width() int
	Height() int

	// Format is the codec the loader detected when the image was decoded.
	Format() Format

	// Release drops the native reference. It is called exactly once.
	Release()
}

// Engine is the imaging backend that owns decode, resample, crop and encode
// kernels. Failing calls return an error and may leave a message in the
// engine's last-error slot, which LastError reads and clears.
type Engine interface {
	OpenFile(path string, pages *PageRange) (Image, error)
	OpenBuffer(buf []byte, pages *PageRange) (Image, error)

	// Resize scales both axes by scale, preserving the aspect ratio.
	Resize(img Image, scale float64) (Image, error)
	Crop(img Image, left, top, width, height int) (Image, error)

	// SmartCrop picks the width x height window with the most salient
	// content, weighted towards the centre.
	SmartCrop(img Image, width, height int) (Image, error)

	Encode(img Image, opts CodecOptions) ([]byte, error)
	EncodeFile(img Image, path string, opts CodecOptions) error

	LastError() string
	SetConcurrency(n int)
}

// CodecOptions is the per-codec option record passed to an encode call.
type CodecOptions interface {
	Format() Format
}

type JpegOptions struct {
	Quality        int
	Strip          bool
	Interlace      bool
	OptimizeCoding bool
	OptimizeScans  bool
	Background     []float64
}

func (JpegOptions) Format() Format { return FormatJpeg }

type PngOptions struct {
	// Quality is the quantisation quality.
	Quality     int
	Compression int
	Strip       bool
	Interlace   bool
	Background  []float64
}

func (PngOptions) Format() Format { return FormatPng }

type WebpOptions struct {
	Quality    int
	Strip      bool
	Background []float64
}

func (WebpOptions) Format() Format { return FormatWebp }

type AvifOptions struct {
	Quality    int
	Strip      bool
	Background []float64
}

func (AvifOptions) Format() Format { return FormatAvif }

// PageRange selects a window of pages from a paginated document. A Count of
// zero or less loads every page from First on.
type PageRange struct {
	First int `json:"first" toml:"first"`
	Count int `json:"count" toml:"count"`
}
