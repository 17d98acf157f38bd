package goimaging

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"

	"github.com/szxp/vipsfit"
)

// renderPDF renders a window of pages and stacks them top to bottom into one
// image. Without a window only the first page is rendered.
func renderPDF(buf []byte, pages *vipsfit.PageRange) (image.Image, error) {
	doc, err := fitz.NewFromMemory(buf)
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	defer doc.Close()

	first, count := 0, 1
	if pages != nil {
		first, count = pages.First, pages.Count
	}
	total := doc.NumPage()
	if first >= total {
		return nil, errors.Errorf("page %d out of range, document has %d pages", first, total)
	}
	if count <= 0 || first+count > total {
		count = total - first
	}

	rendered := make([]image.Image, 0, count)
	width, height := 0, 0
	for n := first; n < first+count; n++ {
		img, err := doc.Image(n)
		if err != nil {
			return nil, errors.Wrapf(err, "render page %d", n)
		}
		if w := img.Bounds().Dx(); w > width {
			width = w
		}
		height += img.Bounds().Dy()
		rendered = append(rendered, img)
	}
	if len(rendered) == 1 {
		return rendered[0], nil
	}

	dst := imaging.New(width, height, image.White)
	y := 0
	for _, img := range rendered {
		dst = imaging.Paste(dst, img, image.Pt(0, y))
		y += img.Bounds().Dy()
	}
	return dst, nil
}
