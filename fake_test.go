package vipsfit

import (
	"errors"
	"fmt"
	"sync"
)

type fakeImage struct {
	engine   *fakeEngine
	width    int
	height   int
	format   Format
	released bool
}

func (i *fakeImage) Width() int     { return i.width }
func (i *fakeImage) Height() int    { return i.height }
func (i *fakeImage) Format() Format { return i.format }

func (i *fakeImage) Release() {
	i.engine.mu.Lock()
	defer i.engine.mu.Unlock()
	if i.released {
		i.engine.doubleReleased++
		return
	}
	i.released = true
	i.engine.released++
}

// fakeEngine records image lifetimes and simulates the engine error slot.
type fakeEngine struct {
	mu sync.Mutex

	// geometry and codec of opened images
	width  int
	height int
	format Format

	fail map[string]bool
	slot string

	created        int
	released       int
	doubleReleased int
	concurrency    int

	calls     []string
	lastOpts  CodecOptions
	lastPages *PageRange
	lastCrop  [4]int
}

func newFakeEngine(width, height int, format Format) *fakeEngine {
	return &fakeEngine{width: width, height: height, format: format, fail: map[string]bool{}}
}

func (e *fakeEngine) image(w, h int, f Format) *fakeImage {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
	return &fakeImage{engine: e, width: w, height: h, format: f}
}

func (e *fakeEngine) call(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, op)
	if e.fail[op] {
		e.slot = fmt.Sprintf("vips_%s: operation failed\n", op)
		return errors.New("vips error")
	}
	return nil
}

func (e *fakeEngine) live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created - e.released
}

func (e *fakeEngine) OpenFile(path string, pages *PageRange) (Image, error) {
	e.lastPages = pages
	if err := e.call("open"); err != nil {
		return nil, err
	}
	return e.image(e.width, e.height, e.format), nil
}

func (e *fakeEngine) OpenBuffer(buf []byte, pages *PageRange) (Image, error) {
	e.lastPages = pages
	if err := e.call("open"); err != nil {
		return nil, err
	}
	return e.image(e.width, e.height, e.format), nil
}

func (e *fakeEngine) Resize(img Image, scale float64) (Image, error) {
	if err := e.call("resize"); err != nil {
		return nil, err
	}
	w := int(float64(img.Width())*scale + 0.5)
	h := int(float64(img.Height())*scale + 0.5)
	return e.image(w, h, img.Format()), nil
}

func (e *fakeEngine) Crop(img Image, left, top, width, height int) (Image, error) {
	e.lastCrop = [4]int{left, top, width, height}
	if err := e.call("crop"); err != nil {
		return nil, err
	}
	return e.image(width, height, img.Format()), nil
}

func (e *fakeEngine) SmartCrop(img Image, width, height int) (Image, error) {
	if err := e.call("smartcrop"); err != nil {
		return nil, err
	}
	return e.image(width, height, img.Format()), nil
}

func (e *fakeEngine) Encode(img Image, opts CodecOptions) ([]byte, error) {
	e.lastOpts = opts
	if err := e.call("encode"); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s %dx%d", opts.Format(), img.Width(), img.Height())), nil
}

func (e *fakeEngine) EncodeFile(img Image, path string, opts CodecOptions) error {
	buf, err := e.Encode(img, opts)
	if err != nil {
		return err
	}
	return WriteFile(path, buf)
}

func (e *fakeEngine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slot
	e.slot = ""
	return s
}

func (e *fakeEngine) SetConcurrency(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.concurrency = n
}
