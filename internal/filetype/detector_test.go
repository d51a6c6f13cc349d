package filetype

import (
	"errors"
	"testing"

	"github.com/local/tourneur/internal/fixture"
)

func TestDetectAcceptsEveryAllowedExtension(t *testing.T) {
	t.Parallel()

	d := New()
	cases := map[string][]byte{
		"report.pdf":   fixture.PDF("one"),
		"scan.PNG":     fixture.PNG(),
		"photo.jpg":    fixture.JPEG(),
		"photo.jpeg":   fixture.JPEG(),
		"sticker.webp": fixture.WebP(),
		"fax.tiff":     fixture.TIFF(),
	}
	for name, data := range cases {
		info, err := d.Detect(name, data)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if name == "report.pdf" && info.Kind != KindPDF {
			t.Fatalf("expected pdf kind, got %s", info.Kind)
		}
		if name != "report.pdf" && info.Kind != KindImage {
			t.Fatalf("%s: expected image kind, got %s", name, info.Kind)
		}
	}
}

func TestCheckNameRejectsUnsupportedExtensions(t *testing.T) {
	t.Parallel()

	d := New()
	for _, name := range []string{"notes.txt", "archive.tar.gz", "README", "slides.pptx", "image.gif"} {
		_, err := d.CheckName(name)
		var ue *UnsupportedError
		if !errors.As(err, &ue) {
			t.Fatalf("%s: expected UnsupportedError, got %v", name, err)
		}
	}
}

func TestDetectRejectsContentMismatch(t *testing.T) {
	t.Parallel()

	_, err := New().Detect("fake.pdf", fixture.PNG())
	var ue *UnsupportedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnsupportedError, got %v", err)
	}
	if ue.Detected != "image/png" {
		t.Fatalf("expected detected image/png, got %q", ue.Detected)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	if _, ok := Lookup("DOC.PDF"); !ok {
		t.Fatalf("expected .PDF to be allowed")
	}
	if _, ok := Lookup(".TiFF"); !ok {
		t.Fatalf("expected bare extension lookup to work")
	}
	if got := Extensions(); len(got) != 6 || got[0] != ".jpeg" {
		t.Fatalf("unexpected allow-list %v", got)
	}
}
