package vipsfit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanFit(t *testing.T) {
	tests := []struct {
		name        string
		sw, sh      int
		tw, th      int
		passthrough bool
		scale       float64
		cropW       int
		cropH       int
	}{
		{name: "no target", sw: 800, sh: 600, passthrough: true, scale: 1, cropW: 800, cropH: 600},
		{name: "same size", sw: 800, sh: 600, tw: 800, th: 600, passthrough: true, scale: 1, cropW: 800, cropH: 600},
		{name: "same width only", sw: 800, sh: 600, tw: 800, passthrough: true, scale: 1, cropW: 800, cropH: 600},
		{name: "same height only is resized", sw: 800, sh: 600, th: 600, scale: 1, cropW: 800, cropH: 600},
		{name: "width only", sw: 800, sh: 600, tw: 400, scale: 0.5, cropW: 400, cropH: 300},
		{name: "height only", sw: 1000, sh: 500, th: 100, scale: 0.2, cropW: 200, cropH: 100},
		{name: "wide into square", sw: 1000, sh: 500, tw: 400, th: 400, scale: 0.8, cropW: 400, cropH: 400},
		{name: "tall into square", sw: 500, sh: 1000, tw: 400, th: 400, scale: 0.8, cropW: 400, cropH: 400},
		{name: "fractional width rounds up", sw: 640, sh: 480, th: 100, scale: 134.0 / 640, cropW: 133, cropH: 100},
		{name: "upscale", sw: 100, sh: 50, tw: 300, th: 300, scale: 6, cropW: 300, cropH: 300},
		{name: "derived height under a pixel", sw: 300, sh: 10, tw: 10, scale: 10.0 / 300, cropW: 10, cropH: 1},
		{name: "derived width under a pixel", sw: 10, sh: 300, th: 10, scale: 0.1, cropW: 1, cropH: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := planFit(tt.sw, tt.sh, ResizeSpec{Width: tt.tw, Height: tt.th})
			assert.Equal(t, tt.passthrough, p.passthrough)
			assert.InDelta(t, tt.scale, p.scale, 1e-9)
			w, h := p.cropSize()
			assert.Equal(t, tt.cropW, w)
			assert.Equal(t, tt.cropH, h)
		})
	}
}

func TestCenterCrop(t *testing.T) {
	p := planFit(1000, 500, ResizeSpec{Width: 400, Height: 400})
	left, top, w, h := p.centerCrop(800, 400)
	assert.Equal(t, []int{200, 0, 400, 400}, []int{left, top, w, h})

	p = planFit(500, 1000, ResizeSpec{Width: 400, Height: 400})
	left, top, w, h = p.centerCrop(400, 800)
	assert.Equal(t, []int{0, 200, 400, 400}, []int{left, top, w, h})
}

func TestParseResizeType(t *testing.T) {
	for tag, want := range map[string]ResizeType{
		"":       ResizeSmart,
		"auto":   ResizeSmart,
		"Smart":  ResizeSmart,
		"center": ResizeCenter,
		"centre": ResizeCenter,
	} {
		got, err := ParseResizeType(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, got, tag)
	}

	_, err := ParseResizeType("fill")
	assert.True(t, IsKind(err, KindParseInput))
}

func newTestResizer(e *fakeEngine) *FitResizer {
	return NewFitResizer(e, NewErrorReporter(e))
}

func openFake(e *fakeEngine) *ImageHandle {
	return newHandle(e.image(e.width, e.height, e.format), SourceBuffer([]byte("raw")), nil)
}

func TestFitResizerApply(t *testing.T) {
	t.Run("pass-through returns the input handle", func(t *testing.T) {
		e := newFakeEngine(800, 600, FormatJpeg)
		h := openFake(e)

		out, err := newTestResizer(e).Apply(h, ResizeSpec{Width: 800})
		require.NoError(t, err)
		assert.Same(t, h, out)
		assert.Empty(t, e.calls)
		assert.Equal(t, 1, e.live())

		out.Close()
		assert.Equal(t, 0, e.live())
	})

	t.Run("center crop", func(t *testing.T) {
		e := newFakeEngine(1000, 500, FormatJpeg)

		out, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: 400, Height: 400, Type: ResizeCenter})
		require.NoError(t, err)
		assert.Equal(t, []string{"resize", "crop"}, e.calls)
		assert.Equal(t, [4]int{200, 0, 400, 400}, e.lastCrop)
		assert.Equal(t, 400, out.Width())
		assert.Equal(t, 400, out.Height())
		assert.True(t, out.Origin().IsNone())

		// source and intermediate are gone, only the result is alive
		assert.Equal(t, 1, e.live())
		out.Close()
		assert.Equal(t, 0, e.live())
		assert.Zero(t, e.doubleReleased)
	})

	t.Run("smart crop", func(t *testing.T) {
		e := newFakeEngine(1000, 500, FormatPng)

		out, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: 400, Height: 400})
		require.NoError(t, err)
		assert.Equal(t, []string{"resize", "smartcrop"}, e.calls)
		out.Close()
		assert.Equal(t, 0, e.live())
	})

	t.Run("no crop when aspect matches", func(t *testing.T) {
		e := newFakeEngine(800, 600, FormatJpeg)

		out, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: 400})
		require.NoError(t, err)
		assert.Equal(t, []string{"resize"}, e.calls)
		assert.Equal(t, 400, out.Width())
		assert.Equal(t, 300, out.Height())
		out.Close()
		assert.Equal(t, 0, e.live())
	})

	t.Run("height anchored target is resized", func(t *testing.T) {
		e := newFakeEngine(800, 600, FormatJpeg)

		out, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Height: 600})
		require.NoError(t, err)
		assert.Equal(t, []string{"resize"}, e.calls)
		assert.Equal(t, 800, out.Width())
		assert.Equal(t, 600, out.Height())
		out.Close()
	})

	t.Run("resize failure", func(t *testing.T) {
		e := newFakeEngine(1000, 500, FormatJpeg)
		e.fail["resize"] = true

		_, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: 400, Height: 400})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindResize))
		assert.Contains(t, err.Error(), "failed to resize image")
		assert.Contains(t, err.Error(), "vips_resize: operation failed")
		assert.Empty(t, e.slot)
		assert.Equal(t, 0, e.live())
	})

	t.Run("crop failure", func(t *testing.T) {
		e := newFakeEngine(1000, 500, FormatJpeg)
		e.fail["crop"] = true

		_, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: 400, Height: 400, Type: ResizeCenter})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindCrop))
		assert.Empty(t, e.slot)
		assert.Equal(t, 0, e.live())
		assert.Zero(t, e.doubleReleased)
	})

	t.Run("negative target", func(t *testing.T) {
		e := newFakeEngine(1000, 500, FormatJpeg)

		_, err := newTestResizer(e).Apply(openFake(e), ResizeSpec{Width: -1})
		assert.True(t, IsKind(err, KindParseInput))
		assert.Equal(t, 0, e.live())
	})
}
