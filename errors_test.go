package vipsfit

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindLoad, Message: "VipsForeignLoad: file has been truncated"}, "failed to open image: VipsForeignLoad: file has been truncated"},
		{&Error{Kind: KindResize, Message: "out of memory"}, "failed to resize image: out of memory"},
		{&Error{Kind: KindCrop, Message: "bad extract area"}, "failed to crop image: bad extract area"},
		{&Error{Kind: KindSave, Message: "disk full"}, "failed to save image: disk full"},
		{&Error{Kind: KindParseInput, Message: "missing output path"}, "invalid request: missing output path"},
		{errUnsupportedFormat(), "format not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	err := pkgerrors.Wrap(newError(KindSave, "disk full"), "thumbnail")
	assert.True(t, IsKind(err, KindSave))
	assert.False(t, IsKind(err, KindLoad))
	assert.False(t, IsKind(errors.New("plain"), KindSave))
	assert.False(t, IsKind(nil, KindSave))
}

func TestErrorReporter(t *testing.T) {
	t.Run("read and clear", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		e.slot = "  vips_image_new: out of memory\n"
		r := NewErrorReporter(e)

		assert.Equal(t, "vips_image_new: out of memory", r.ReadAndClear())
		assert.Equal(t, "", r.ReadAndClear())
	})

	t.Run("slot drained on failure", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		r := NewErrorReporter(e)

		err := r.call(KindLoad, func() error {
			e.slot = "VipsJpeg: premature end of input file\n"
			return errors.New("load failed")
		})
		require.Error(t, err)
		assert.Equal(t, "failed to open image: load failed: VipsJpeg: premature end of input file", err.Error())
		assert.Empty(t, e.slot)

		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindLoad, pe.Kind)
	})

	t.Run("slot text already in the error", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		r := NewErrorReporter(e)

		err := r.call(KindSave, func() error {
			e.slot = "disk full"
			return errors.New("write: disk full")
		})
		assert.Equal(t, "failed to save image: write: disk full", err.Error())
	})

	t.Run("typed errors pass through", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		r := NewErrorReporter(e)
		e.slot = "stale"

		err := r.call(KindSave, func() error {
			return errUnsupportedFormat()
		})
		assert.Equal(t, "format not supported", err.Error())
		assert.Empty(t, e.slot)
	})

	t.Run("success leaves the slot alone", func(t *testing.T) {
		e := newFakeEngine(1, 1, FormatPng)
		r := NewErrorReporter(e)

		assert.NoError(t, r.call(KindLoad, func() error { return nil }))
	})
}
