package build

import (
	"math"
	"mime"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
)

var mediaTypes = map[string]string{
	".webp": "image/webp",
	".avif": "image/avif",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".apng": "image/apng",
	".webm": "video/webm",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
}

// mediaType guesses the MIME type from a path or URL extension.
func mediaType(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(path.Ext(filepath.ToSlash(p)))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return ""
}

func element(tag atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: tag, Data: tag.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

func dimension(v float64) string {
	return strconv.FormatFloat(math.Round(v), 'f', -1, 64)
}

func (b *Builder) defaultNode(a asset.Asset, kind asset.Type) *html.Node {
	switch kind {
	case asset.TypeVideo:
		return b.videoNode(a)
	case asset.TypeExternal:
		return linkNode(a)
	default:
		return b.pictureNode(a)
	}
}

// pictureNode renders <picture> with an optional derivative <source> and the
// original as <img>.
func (b *Builder) pictureNode(a asset.Asset) *html.Node {
	pic := element(atom.Picture)
	if a.EncodedPath != "" && a.Content != "" {
		attrs := []html.Attribute{attr("srcset", a.Content)}
		if t := mediaType(a.EncodedPath); t != "" {
			attrs = append(attrs, attr("type", t))
		}
		pic.AppendChild(element(atom.Source, attrs...))
	}

	img := element(atom.Img, attr("src", sourceURL(a)), attr("alt", a.Syntax.Title))
	if size := a.Size.Fit(b.maxWidth); size.Positive() {
		img.Attr = append(img.Attr, attr("width", dimension(size.Width)), attr("height", dimension(size.Height)))
	}
	img.Attr = append(img.Attr, attr("loading", "lazy"), attr("decoding", "async"))
	pic.AppendChild(img)
	return pic
}

// videoNode renders <video> with the derivative first, then the original,
// then the title as fallback text.
func (b *Builder) videoNode(a asset.Asset) *html.Node {
	v := element(atom.Video, attr("controls", ""), attr("preload", "metadata"))
	if size := a.Size.Fit(b.maxWidth); size.Positive() {
		v.Attr = append(v.Attr, attr("width", dimension(size.Width)))
	}
	if poster := b.poster(a); poster != "" {
		v.Attr = append(v.Attr, attr("poster", poster))
	}

	if a.EncodedPath != "" && a.Content != "" {
		v.AppendChild(sourceNode(a.Content, a.EncodedPath))
	}
	orig := sourceURL(a)
	v.AppendChild(sourceNode(orig, orig))
	v.AppendChild(&html.Node{Type: html.TextNode, Data: a.Syntax.Title})
	return v
}

func sourceNode(src, typeHint string) *html.Node {
	attrs := []html.Attribute{attr("src", src)}
	if t := mediaType(typeHint); t != "" {
		attrs = append(attrs, attr("type", t))
	}
	return element(atom.Source, attrs...)
}

func (b *Builder) poster(a asset.Asset) string {
	switch b.posterMode {
	case config.PosterAuto:
		if a.PosterPath != "" {
			return b.PublicURL(a.PosterPath)
		}
	case "fixed":
		return b.posterURL
	}
	return ""
}

// linkNode is the fallback for external links no plugin handled.
func linkNode(a asset.Asset) *html.Node {
	href := a.Content
	if href == "" {
		href = sourceURL(a)
	}
	text := a.Syntax.Title
	if text == "" {
		text = href
	}
	link := element(atom.A, attr("href", href))
	link.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return link
}

func renderNode(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", err
	}
	return sb.String(), nil
}
