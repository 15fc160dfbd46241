package capture

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mediapipe/internal/asset"
	"git.home.luguber.info/inful/mediapipe/internal/config"
	ferrors "git.home.luguber.info/inful/mediapipe/internal/foundation/errors"
)

func newScanner(t *testing.T, mutate func(*config.Config)) *Scanner {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg.Capture, cfg.Kinds, cfg.External)
	require.NoError(t, err)
	return s
}

func TestScanFindsAssetsInOrder(t *testing.T) {
	doc := []byte("# Title\n\n![Diagram](img/arch.png)\n\nText ![clip](https://cdn.example.com/v/demo.MP4 \"Demo\") and " +
		"![spin](anim/loader.gif).\n")
	s := newScanner(t, nil)

	assets := s.Scan(doc)
	require.Len(t, assets, 3)

	assert.Equal(t, "Diagram", assets[0].Syntax.Title)
	assert.Equal(t, "img/arch.png", assets[0].Syntax.URI)
	assert.Equal(t, asset.TypeImage, assets[0].Type)
	assert.Equal(t, "![Diagram](img/arch.png)", string(doc[assets[0].Syntax.Start:assets[0].Syntax.End]))

	assert.Equal(t, asset.TypeVideo, assets[1].Type)
	assert.Equal(t, "https://cdn.example.com/v/demo.MP4", assets[1].SourceURL)
	assert.Equal(t, `![clip](https://cdn.example.com/v/demo.MP4 "Demo")`, string(doc[assets[1].Syntax.Start:assets[1].Syntax.End]))

	assert.Equal(t, asset.TypeAnimation, assets[2].Type)
	assert.Less(t, assets[0].Syntax.Start, assets[1].Syntax.Start)
	assert.Less(t, assets[1].Syntax.Start, assets[2].Syntax.Start)
}

func TestClassify(t *testing.T) {
	s := newScanner(t, nil)
	cases := map[string]asset.Type{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": asset.TypeExternal,
		"https://youtu.be/dQw4w9WgXcQ":                asset.TypeExternal,
		"https://youtube.com/video.mp4":               asset.TypeExternal,
		"https://notyoutube.com/clip.mp4":             asset.TypeVideo,
		"photo.JPG":                                   asset.TypeImage,
		"photo.png?v=2":                               asset.TypeImage,
		"loop.gif#frag":                               asset.TypeAnimation,
		"clip.webm":                                   asset.TypeVideo,
		"file.unknownext":                             asset.TypeImage,
		"noext":                                       asset.TypeImage,
	}
	for uri, want := range cases {
		assert.Equal(t, want, s.Classify(uri), uri)
	}
}

func TestClassifyExternalDisabled(t *testing.T) {
	s := newScanner(t, func(c *config.Config) { c.External.Enabled = false })
	assert.Equal(t, asset.TypeImage, s.Classify("https://www.youtube.com/watch?v=abc"))
}

func TestScanSkipCode(t *testing.T) {
	doc := []byte("![a](a.png)\n\n```\n![b](b.png)\n```\n\nInline `![c](c.png)` and ![d](d.png)\n")

	all := newScanner(t, nil).Scan(doc)
	assert.Len(t, all, 4)

	skipping := newScanner(t, func(c *config.Config) { c.Capture.SkipCode = true }).Scan(doc)
	require.Len(t, skipping, 2)
	assert.Equal(t, "a.png", skipping[0].Syntax.URI)
	assert.Equal(t, "d.png", skipping[1].Syntax.URI)
}

func TestNewRequiresNamedGroups(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Pattern = `!\[([^\]]*)\]\(([^)]+)\)`
	_, err := New(cfg.Capture, cfg.Kinds, cfg.External)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	cfg.Capture.Pattern = `(?P<title>[`
	_, err = New(cfg.Capture, cfg.Kinds, cfg.External)
	require.Error(t, err)
}

func TestCustomPattern(t *testing.T) {
	s := newScanner(t, func(c *config.Config) {
		c.Capture.Pattern = `\{\{<\s*media\s+src="(?P<uri>[^"]+)"\s+title="(?P<title>[^"]*)"\s*>\}\}`
	})
	assets := s.Scan([]byte(`before {{< media src="v/intro.mov" title="Intro" >}} after`))
	require.Len(t, assets, 1)
	assert.Equal(t, "Intro", assets[0].Syntax.Title)
	assert.Equal(t, asset.TypeVideo, assets[0].Type)
}

func TestScanNoMatches(t *testing.T) {
	assert.Empty(t, newScanner(t, nil).Scan([]byte("plain text with [a link](page.md)")))
}

func TestScanLogsMatchWithoutURI(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := config.Default()
	cfg.Capture.Pattern = `\[\[(?P<title>[^|\]]*)\|(?P<uri>[^\]]*)\]\]`
	s, err := New(cfg.Capture, cfg.Kinds, cfg.External, WithLogger(logger))
	require.NoError(t, err)

	assets := s.Scan([]byte("[[Empty| ]] and [[Logo|img/logo.png]]"))
	require.Len(t, assets, 1)
	assert.Equal(t, "img/logo.png", assets[0].Syntax.URI)
	assert.Contains(t, buf.String(), "Match without URI left as text")
	assert.Contains(t, buf.String(), "offset=0")
}
