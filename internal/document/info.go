package document

import (
	"regexp"
	"sort"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultTextThreshold is the number of non-whitespace characters a sample
// must reach for a document to count as having a text layer.
const DefaultTextThreshold = 50

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Info is descriptive metadata about a PDF.
type Info struct {
	Version      string    `json:"version,omitempty"`
	Encrypted    bool      `json:"encrypted"`
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	Producer     string    `json:"producer,omitempty"`
	HasTextLayer bool      `json:"hasTextLayer"`
	Probe        TextProbe `json:"probe"`
}

// TextProbe records how HasTextLayer was decided.
type TextProbe struct {
	SampledPages []int `json:"sampledPages"`
	Chars        int   `json:"chars"`
	Threshold    int   `json:"threshold"`
}

// Info reads PDF metadata with pdfcpu and samples a few pages' text layers.
// pdfcpu failures leave the metadata fields empty; MuPDF failures are an
// OpenError.
func (s *Service) Info(path string) (Info, error) {
	var info Info
	if ctx, err := api.ReadContextFile(path); err == nil {
		info.Version = ctx.XRefTable.VersionString()
		info.Encrypted = ctx.XRefTable.Encrypt != nil
		if api.ValidateContext(ctx) == nil {
			info.Title = ctx.XRefTable.Title
			info.Author = ctx.XRefTable.Author
			info.Producer = ctx.XRefTable.Producer
		}
	} else {
		s.lg.Debug().Err(err).Str("file", path).Msg("pdfcpu could not read document info")
	}

	probe, err := probeText(path, DefaultTextThreshold)
	if err != nil {
		return Info{}, err
	}
	info.Probe = probe
	info.HasTextLayer = probe.Chars >= probe.Threshold
	return info, nil
}

func probeText(path string, threshold int) (TextProbe, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return TextProbe{}, &OpenError{Path: path, Err: err}
	}
	defer doc.Close()

	p := TextProbe{SampledPages: sampleIndices(doc.NumPage()), Threshold: threshold}
	for _, idx := range p.SampledPages {
		text, err := doc.Text(idx)
		if err != nil {
			continue
		}
		p.Chars += len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		if p.Chars >= threshold {
			break
		}
	}
	return p, nil
}

// sampleIndices picks up to five pages: all of them for short documents,
// otherwise first, last, middle and the two quartiles.
func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	set := map[int]struct{}{0: {}, total / 4: {}, total / 2: {}, 3 * total / 4: {}, total - 1: {}}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
