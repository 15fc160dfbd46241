package build

import (
	"strings"
	"text/template"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
)

// TemplateData is the value passed to build.overrides templates.
type TemplateData struct {
	Kind    string
	Title   string
	URI     string
	Source  string
	Content string
	Encoded string
	Poster  string
	// Width and Height are empty when unknown, already capped at max_width.
	Width  string
	Height string
}

var templateFuncs = template.FuncMap{
	"attr": html.EscapeString,
}

func (b *Builder) templateData(a asset.Asset) TemplateData {
	d := TemplateData{
		Kind:    string(a.Type),
		Title:   a.Syntax.Title,
		URI:     a.Syntax.URI,
		Source:  sourceURL(a),
		Content: a.Content,
		Poster:  b.poster(a),
	}
	if a.EncodedPath != "" {
		d.Encoded = b.PublicURL(a.EncodedPath)
	}
	if size := a.Size.Fit(b.maxWidth); size.Positive() {
		d.Width = dimension(size.Width)
		d.Height = dimension(size.Height)
	}
	return d
}

func (b *Builder) renderOverride(tmpl *template.Template, a asset.Asset) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, b.templateData(a)); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "build override template failed").
			Fatal().WithContext("kind", string(a.Type)).WithContext("uri", a.Syntax.URI).Build()
	}
	return sb.String(), nil
}
