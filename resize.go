package vipsfit

import (
	"math"
	"strings"
)

// ResizeType selects how the surplus of a scaled-to-cover image is trimmed.
type ResizeType int

const (
	// The engine picks the most salient window of the target size,
	// falling back to the centre.
	ResizeSmart ResizeType = iota

	// The window is cut from the geometric centre.
	ResizeCenter
)

func ParseResizeType(tag string) (ResizeType, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "", "auto", "smart":
		return ResizeSmart, nil
	case "center", "centre":
		return ResizeCenter, nil
	}
	return ResizeSmart, newError(KindParseInput, "unknown resize type: %q", tag)
}

func (t ResizeType) String() string {
	if t == ResizeCenter {
		return "center"
	}
	return "auto"
}

func (t ResizeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ResizeType) UnmarshalText(text []byte) error {
	v, err := ParseResizeType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ResizeSpec is a target box. A zero dimension is derived from the other one
// and the source aspect ratio.
type ResizeSpec struct {
	Width  int
	Height int
	Type   ResizeType
}

// fitPlan is the geometry computed for one source and target box.
type fitPlan struct {
	passthrough bool
	scale       float64

	// target box, with a missing dimension derived
	width  float64
	height float64
}

// cropSize never drops below one pixel, so a derived dimension that rounds
// to zero still yields an image.
func (p fitPlan) cropSize() (int, int) {
	return max(1, int(math.Round(p.width))), max(1, int(math.Round(p.height)))
}

func planFit(sw, sh int, spec ResizeSpec) fitPlan {
	tw, th := spec.Width, spec.Height

	// Only the width-anchored single-dimension case is treated as already
	// satisfied; the height-anchored check compares sw with 0.
	if (tw == 0 && th == 0) ||
		(tw == sw && th == sh) ||
		(tw == sw && th == 0) ||
		(th == sh && sw == 0) {
		return fitPlan{passthrough: true, scale: 1, width: float64(sw), height: float64(sh)}
	}

	fsw, fsh := float64(sw), float64(sh)
	twf, thf := float64(tw), float64(th)
	if tw == 0 {
		twf = thf * fsw / fsh
	}
	if th == 0 {
		thf = twf * fsh / fsw
	}

	var resizeWidth float64
	if fsw/fsh >= twf/thf {
		resizeWidth = fsw * thf / fsh
	} else {
		resizeWidth = twf
	}

	return fitPlan{
		scale:  math.Ceil(resizeWidth) / fsw,
		width:  twf,
		height: thf,
	}
}

// centerCrop returns the geometric crop box of the target inside a resized
// image of rw x rh pixels.
func (p fitPlan) centerCrop(rw, rh int) (left, top, width, height int) {
	width, height = p.cropSize()
	left = int(math.Abs(p.width-float64(rw)) / 2)
	top = int(math.Abs(p.height-float64(rh)) / 2)
	return left, top, width, height
}

// FitResizer scales an image to cover a target box and crops the surplus.
type FitResizer struct {
	engine   Engine
	reporter *ErrorReporter
}

func NewFitResizer(engine Engine, reporter *ErrorReporter) *FitResizer {
	return &FitResizer{engine: engine, reporter: reporter}
}

// Apply consumes h. It returns h itself when the target is already
// satisfied, otherwise a new handle; h is released in every other case,
// including failures.
func (r *FitResizer) Apply(h *ImageHandle, spec ResizeSpec) (*ImageHandle, error) {
	if spec.Width < 0 || spec.Height < 0 {
		h.Close()
		return nil, newError(KindParseInput, "negative target size %dx%d", spec.Width, spec.Height)
	}

	sw, sh := h.Width(), h.Height()
	plan := planFit(sw, sh, spec)
	if plan.passthrough {
		return h, nil
	}
	if sw <= 0 || sh <= 0 {
		h.Close()
		return nil, newError(KindResize, "invalid source size %dx%d", sw, sh)
	}

	resized, err := r.resize(h, plan.scale)
	h.Close()
	if err != nil {
		return nil, err
	}

	out, err := r.crop(resized, plan, spec.Type)
	if out != resized {
		resized.Close()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FitResizer) resize(h *ImageHandle, scale float64) (*ImageHandle, error) {
	var img Image
	err := r.reporter.call(KindResize, func() (err error) {
		img, err = r.engine.Resize(h.img, scale)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h.derive(img), nil
}

func (r *FitResizer) crop(h *ImageHandle, plan fitPlan, typ ResizeType) (*ImageHandle, error) {
	rw, rh := h.Width(), h.Height()
	left, top, width, height := plan.centerCrop(rw, rh)

	// Engine rounding can leave the resized image a pixel short.
	if width > rw {
		width = rw
	}
	if height > rh {
		height = rh
	}
	if left+width > rw {
		left = rw - width
	}
	if top+height > rh {
		top = rh - height
	}

	if width == rw && height == rh {
		return h, nil
	}

	var img Image
	err := r.reporter.call(KindCrop, func() (err error) {
		if typ == ResizeSmart {
			img, err = r.engine.SmartCrop(h.img, width, height)
		} else {
			img, err = r.engine.Crop(h.img, left, top, width, height)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return h.derive(img), nil
}
