package vipsfit

import (
	"os"

	"github.com/pkg/errors"
)

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceFile
	sourceBuffer
)

// Source records where an image was decoded from, so it can be re-read in
// raw form when no re-encode is needed.
type Source struct {
	kind sourceKind
	path string
	buf  []byte
}

var SourceNone = Source{}

func SourceFile(path string) Source {
	return Source{kind: sourceFile, path: path}
}

func SourceBuffer(buf []byte) Source {
	return Source{kind: sourceBuffer, buf: buf}
}

func (s Source) IsNone() bool {
	return s.kind == sourceNone
}

func (s Source) Path() (string, bool) {
	return s.path, s.kind == sourceFile
}

func (s Source) Buffer() ([]byte, bool) {
	return s.buf, s.kind == sourceBuffer
}

// Raw returns the original bytes of the source.
func (s Source) Raw() ([]byte, error) {
	switch s.kind {
	case sourceFile:
		b, err := os.ReadFile(s.path)
		if err != nil {
			return nil, errors.Wrap(err, "read source")
		}
		return b, nil
	case sourceBuffer:
		return s.buf, nil
	}
	return nil, errors.New("image has no source")
}

// ImageHandle owns one engine image. It is not safe for concurrent use and
// must not be shared between pipeline invocations.
type ImageHandle struct {
	img    Image
	origin Source
	pages  *PageRange
}

func newHandle(img Image, origin Source, pages *PageRange) *ImageHandle {
	return &ImageHandle{img: img, origin: origin, pages: pages}
}

// derive wraps the output of a transforming engine call. Derived images have
// no raw source.
func (h *ImageHandle) derive(img Image) *ImageHandle {
	return &ImageHandle{img: img, origin: SourceNone}
}

func (h *ImageHandle) Width() int {
	return h.img.Width()
}

func (h *ImageHandle) Height() int {
	return h.img.Height()
}

// Format is the detected source codec.
func (h *ImageHandle) Format() Format {
	return h.img.Format()
}

func (h *ImageHandle) Origin() Source {
	return h.origin
}

// Paginated reports whether the handle holds a page window of its source.
func (h *ImageHandle) Paginated() bool {
	return h.pages != nil
}

// rawPassthrough reports whether the original bytes can stand in for an
// encode to the handle's own format.
func (h *ImageHandle) rawPassthrough() bool {
	return !h.origin.IsNone() && h.pages == nil
}

// Close releases the native image. Further calls are no-ops.
func (h *ImageHandle) Close() {
	if h == nil || h.img == nil {
		return
	}
	h.img.Release()
	h.img = nil
}
