package vipsfit

import (
	"strings"
)

// Format is an image codec. FormatAuto stands for the source codec and is
// resolved at dispatch time. Gif, Pdf, Tiff, Heif and Unknown are only ever
// detected on sources; they are not encode targets.
type Format int

const (
	FormatAuto Format = iota
	FormatJpeg
	FormatPng
	FormatWebp
	FormatAvif
	FormatSvg
	FormatGif
	FormatPdf
	FormatTiff
	FormatHeif
	FormatUnknown
)

var formatTags = map[Format]string{
	FormatAuto:    "auto",
	FormatJpeg:    "jpg",
	FormatPng:     "png",
	FormatWebp:    "webp",
	FormatAvif:    "avif",
	FormatSvg:     "svg",
	FormatGif:     "gif",
	FormatPdf:     "pdf",
	FormatTiff:    "tiff",
	FormatHeif:    "heif",
	FormatUnknown: "unknown",
}

var formatMIME = map[Format]string{
	FormatJpeg: "image/jpeg",
	FormatPng:  "image/png",
	FormatWebp: "image/webp",
	FormatAvif: "image/avif",
	FormatSvg:  "image/svg+xml",
	FormatGif:  "image/gif",
	FormatPdf:  "application/pdf",
	FormatTiff: "image/tiff",
	FormatHeif: "image/heif",
}

// ParseFormat maps a request tag to a Format. "none" is accepted as an alias
// of "auto".
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "auto", "none":
		return FormatAuto, nil
	case "jpg", "jpeg":
		return FormatJpeg, nil
	case "png":
		return FormatPng, nil
	case "webp":
		return FormatWebp, nil
	case "avif":
		return FormatAvif, nil
	case "svg":
		return FormatSvg, nil
	case "gif":
		return FormatGif, nil
	case "pdf":
		return FormatPdf, nil
	case "tif", "tiff":
		return FormatTiff, nil
	case "heif", "heic":
		return FormatHeif, nil
	}
	return FormatUnknown, errUnsupportedFormat()
}

func (f Format) String() string {
	if tag, ok := formatTags[f]; ok {
		return tag
	}
	return "unknown"
}

// MIME returns the media type of f, or application/octet-stream.
func (f Format) MIME() string {
	if m, ok := formatMIME[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// Encodable reports whether f is a terminal encode target.
func (f Format) Encodable() bool {
	switch f {
	case FormatJpeg, FormatPng, FormatWebp, FormatAvif, FormatSvg:
		return true
	}
	return false
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	v, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
