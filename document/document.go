// Package document inspects PDFs before the pipeline touches them: page
// geometry in points, page /Rotate values, and best-effort Info-dictionary
// metadata. It also implements the 1-based page-list notation used on the
// command line.
package document

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/wudi/ocrkit/coords"
)

// US Letter, the fallback when a page carries no MediaBox.
const (
	letterWidth  = 612.0
	letterHeight = 792.0
)

// Page holds one page's geometry in PDF points.
type Page struct {
	Width  float64
	Height float64
	// Rotation is the page's /Rotate normalized to 0, 90, 180 or 270.
	Rotation int
}

// Metadata is the document Info dictionary, best effort. Missing or
// undecodable entries are empty strings.
type Metadata struct {
	Title    string
	Author   string
	Subject  string
	Keywords string
	Creator  string
	Producer string
}

// Info describes a PDF document.
type Info struct {
	PageCount int
	Pages     []Page
	Meta      Metadata
}

// Inspect reads the document's page geometry and metadata.
func Inspect(path string) (*Info, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	info := &Info{
		PageCount: ctx.PageCount,
		Pages:     make([]Page, 0, ctx.PageCount),
	}
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", i, path, err)
		}
		p := Page{Width: letterWidth, Height: letterHeight}
		if inh != nil {
			if inh.MediaBox != nil {
				p.Width = inh.MediaBox.Width()
				p.Height = inh.MediaBox.Height()
			}
			p.Rotation = coords.NormalizeRotation(inh.Rotate)
		}
		info.Pages = append(info.Pages, p)
	}
	info.Meta = readMetadata(ctx)
	return info, nil
}

func readMetadata(ctx *model.Context) Metadata {
	var m Metadata
	if ctx.Info == nil {
		return m
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return m
	}
	m.Title = infoString(ctx, d, "Title")
	m.Author = infoString(ctx, d, "Author")
	m.Subject = infoString(ctx, d, "Subject")
	m.Keywords = infoString(ctx, d, "Keywords")
	m.Creator = infoString(ctx, d, "Creator")
	m.Producer = infoString(ctx, d, "Producer")
	return m
}

// infoString decodes one Info entry, tolerating both literal forms.
func infoString(ctx *model.Context, d types.Dict, key string) string {
	o, found := d.Find(key)
	if !found {
		return ""
	}
	o, err := ctx.Dereference(o)
	if err != nil {
		return ""
	}
	switch lit := o.(type) {
	case types.StringLiteral:
		s, err := types.StringLiteralToString(lit)
		if err != nil {
			return ""
		}
		return s
	case types.HexLiteral:
		s, err := types.HexLiteralToString(lit)
		if err != nil {
			return ""
		}
		return s
	default:
		return ""
	}
}
