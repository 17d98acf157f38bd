package goimaging

import (
	"bytes"

	"github.com/szxp/vipsfit"
)

// detectFormat identifies a codec from the leading bytes of buf.
func detectFormat(buf []byte) vipsfit.Format {
	switch {
	case bytes.HasPrefix(buf, []byte{0xff, 0xd8, 0xff}):
		return vipsfit.FormatJpeg
	case bytes.HasPrefix(buf, []byte("\x89PNG\r\n\x1a\n")):
		return vipsfit.FormatPng
	case bytes.HasPrefix(buf, []byte("GIF87a")), bytes.HasPrefix(buf, []byte("GIF89a")):
		return vipsfit.FormatGif
	case len(buf) >= 12 && bytes.Equal(buf[0:4], []byte("RIFF")) && bytes.Equal(buf[8:12], []byte("WEBP")):
		return vipsfit.FormatWebp
	case bytes.HasPrefix(buf, []byte("%PDF")):
		return vipsfit.FormatPdf
	case bytes.HasPrefix(buf, []byte("II*\x00")), bytes.HasPrefix(buf, []byte("MM\x00*")):
		return vipsfit.FormatTiff
	case len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")):
		switch string(buf[8:12]) {
		case "avif", "avis":
			return vipsfit.FormatAvif
		case "heic", "heix", "hevc", "mif1", "msf1":
			return vipsfit.FormatHeif
		}
	case isSVG(buf):
		return vipsfit.FormatSvg
	}
	return vipsfit.FormatUnknown
}

func isSVG(buf []byte) bool {
	head := buf
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n")
	if !bytes.HasPrefix(head, []byte("<")) {
		return false
	}
	return bytes.Contains(head, []byte("<svg"))
}
