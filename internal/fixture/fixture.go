// Package fixture builds small, valid documents in memory for tests:
// multi-page PDFs with a known text layer and one-pixel images in every
// upload format the service accepts.
package fixture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/tiff"
)

// PDF returns a PDF with one Letter-sized page per entry. Each non-empty
// entry is drawn as a single Helvetica line; an empty entry produces a page
// with vector content only and therefore no text layer.
func PDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, text := range pages {
		content := "0.5 w 72 72 m 540 720 l S"
		if text != "" {
			content = fmt.Sprintf("BT /F1 24 Tf 72 700 Td (%s) Tj ET", escape(text))
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

func pixel() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	return img
}

// PNG returns a tiny PNG image.
func PNG() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, pixel())
	return buf.Bytes()
}

// JPEG returns a tiny JPEG image.
func JPEG() []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, pixel(), nil)
	return buf.Bytes()
}

// TIFF returns a tiny TIFF image.
func TIFF() []byte {
	var buf bytes.Buffer
	_ = tiff.Encode(&buf, pixel(), nil)
	return buf.Bytes()
}

// WebP returns a minimal lossless WebP container (1x1).
func WebP() []byte {
	payload := []byte{
		'V', 'P', '8', 'L', 0x0a, 0x00, 0x00, 0x00,
		0x2f, 0x00, 0x00, 0x00, 0x10, 0x07, 0x10, 0x11, 0x11, 0x88,
	}
	out := []byte{'R', 'I', 'F', 'F', 0, 0, 0, 0, 'W', 'E', 'B', 'P'}
	out = append(out, payload...)
	size := len(out) - 8
	out[4], out[5], out[6], out[7] = byte(size), byte(size>>8), byte(size>>16), byte(size>>24)
	return out
}
