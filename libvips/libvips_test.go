package libvips

import (
	"bytes"
	goimage "image"
	gocolor "image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/szxp/vipsfit"
)

func TestFormatOf(t *testing.T) {
	assert.Equal(t, vipsfit.FormatJpeg, formatOf(vips.ImageTypeJPEG))
	assert.Equal(t, vipsfit.FormatAvif, formatOf(vips.ImageTypeAVIF))
	assert.Equal(t, vipsfit.FormatPdf, formatOf(vips.ImageTypePDF))
	assert.Equal(t, vipsfit.FormatUnknown, formatOf(vips.ImageTypeUnknown))
}

func TestColor(t *testing.T) {
	assert.Equal(t, &vips.Color{R: 255, G: 255, B: 255}, color([]float64{255}))
	assert.Equal(t, &vips.Color{R: 0, G: 128, B: 255}, color([]float64{-3, 128, 999}))
}

func TestImportParams(t *testing.T) {
	p := importParams(&vipsfit.PageRange{First: 2, Count: 0})
	assert.Equal(t, 2, p.Page.Get())
	assert.Equal(t, -1, p.NumPages.Get())

	p = importParams(&vipsfit.PageRange{First: 0, Count: 3})
	assert.Equal(t, 3, p.NumPages.Get())
}

func TestVipsError(t *testing.T) {
	assert.NoError(t, vipsError(nil))

	err := vipsError(errors.New("VipsForeignLoad: buffer is not in a known format\n\nStack:\ngoroutine 7 [running]:\nruntime/debug.Stack()\n"))
	assert.EqualError(t, err, "VipsForeignLoad: buffer is not in a known format")

	assert.EqualError(t, vipsError(errors.New("unsupported image format\n")), "unsupported image format")
}

func TestEngine(t *testing.T) {
	e := New(Config{})

	var buf bytes.Buffer
	src := goimage.NewNRGBA(goimage.Rect(0, 0, 64, 32))
	for i := range src.Pix {
		src.Pix[i] = 200
	}
	src.Set(0, 0, gocolor.NRGBA{A: 0})
	require.NoError(t, png.Encode(&buf, src))

	p, err := vipsfit.NewPipeline(vipsfit.PipelineConfig{Engine: e})
	require.NoError(t, err)

	out, err := p.ProcessBytesToBytes(vipsfit.ImageBytesRequest{
		Bytes:  buf.Bytes(),
		Resize: vipsfit.ResizeOptions{Width: 16, Height: 16},
		Save:   vipsfit.SaveOptions{Format: vipsfit.FormatJpeg, Background: []float64{255, 255, 255}},
	})
	require.NoError(t, err)
	w, h, err := p.ImageBytesSizes(out)
	require.NoError(t, err)
	assert.Equal(t, []int{16, 16}, []int{w, h})

	f, err := p.ImageBytesFormat(out)
	require.NoError(t, err)
	assert.Equal(t, vipsfit.FormatJpeg, f)

	_, err = p.ImageBytesFormat([]byte("not an image"))
	require.Error(t, err)
	assert.True(t, vipsfit.IsKind(err, vipsfit.KindLoad))
	assert.True(t, strings.HasPrefix(err.Error(), "failed to open image: "), err.Error())
	assert.NotContains(t, err.Error(), "Stack:")
	assert.Empty(t, e.LastError())

	p.SetConcurrency(2)
	assert.Equal(t, 2, p.Concurrency())

	assert.Same(t, e, New(Config{Concurrency: 8}))
	again, err := vipsfit.NewPipeline(vipsfit.PipelineConfig{Engine: New(Config{})})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Concurrency())
	assert.NotEmpty(t, Version())
}
