package filetype

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind groups accepted extensions by how the service can process them.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

// FileTypeInfo describes an accepted upload extension.
type FileTypeInfo struct {
	Extension   string // lower-case, with leading dot
	Kind        Kind
	MIMETypes   []string // sniffed MIME types accepted for this extension
	Description string
}

// UnsupportedError is returned when an upload is not on the allow-list or
// its content does not match the extension it claims.
type UnsupportedError struct {
	Extension string
	Detected  string // sniffed MIME type, empty when rejected by extension alone
}

func (e *UnsupportedError) Error() string {
	if e.Detected != "" {
		return fmt.Sprintf("unsupported file type: content is %s, not %s", e.Detected, e.Extension)
	}
	if e.Extension == "" {
		return "unsupported file type: missing extension"
	}
	return fmt.Sprintf("unsupported file type: %s", e.Extension)
}

var allowed = map[string]FileTypeInfo{
	".pdf":  {Extension: ".pdf", Kind: KindPDF, MIMETypes: []string{"application/pdf"}, Description: "PDF document"},
	".png":  {Extension: ".png", Kind: KindImage, MIMETypes: []string{"image/png", "image/vnd.mozilla.apng"}, Description: "PNG image"},
	".jpg":  {Extension: ".jpg", Kind: KindImage, MIMETypes: []string{"image/jpeg"}, Description: "JPEG image"},
	".jpeg": {Extension: ".jpeg", Kind: KindImage, MIMETypes: []string{"image/jpeg"}, Description: "JPEG image"},
	".webp": {Extension: ".webp", Kind: KindImage, MIMETypes: []string{"image/webp"}, Description: "WebP image"},
	".tiff": {Extension: ".tiff", Kind: KindImage, MIMETypes: []string{"image/tiff"}, Description: "TIFF image"},
}

// Detector checks uploads against the allow-list using magic bytes.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Extensions returns the allow-list in sorted order.
func Extensions() []string {
	out := make([]string, 0, len(allowed))
	for ext := range allowed {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the allow-list entry for a filename or extension.
func Lookup(nameOrExt string) (FileTypeInfo, bool) {
	info, ok := allowed[strings.ToLower(filepath.Ext(nameOrExt))]
	return info, ok
}

// CheckName validates a filename against the allow-list without looking at content.
func (d *Detector) CheckName(filename string) (FileTypeInfo, error) {
	info, ok := Lookup(filename)
	if !ok {
		return FileTypeInfo{}, &UnsupportedError{Extension: strings.ToLower(filepath.Ext(filename))}
	}
	return info, nil
}

// Detect validates the filename and then confirms the content's magic bytes
// belong to the extension's family.
func (d *Detector) Detect(filename string, data []byte) (FileTypeInfo, error) {
	info, err := d.CheckName(filename)
	if err != nil {
		return info, err
	}

	mtype := mimetype.Detect(data)
	log.Debug().Str("mime", mtype.String()).Str("ext", info.Extension).Msg("detected upload type")

	for _, m := range info.MIMETypes {
		if mtype.Is(m) {
			return info, nil
		}
	}
	return FileTypeInfo{}, &UnsupportedError{Extension: info.Extension, Detected: mtype.String()}
}
