package config

import "strings"

const (
	DefaultCapturePattern = `!\[(?P<title>[^\]]*)\]\((?P<uri>[^)\s]+)(?:\s+"[^"]*")?\)`
	DefaultHostPattern    = `(^|\.)(youtube\.com|youtube-nocookie\.com|youtu\.be)$`
	DefaultProbeArgs      = `ffprobe -v error -select_streams v:0 -show_entries stream=width,height -of csv=s=x:p=0 {input}`

	PosterAuto = "auto"
	PosterNone = "none"
	// PosterFixedPrefix precedes the shared poster URL, e.g. "fixed:/img/poster.jpg".
	PosterFixedPrefix = "fixed:"
)

// Default returns a configuration with every option set to its default.
func Default() *Config {
	return &Config{
		MirrorRoot: "./public",
		PublicPath: "/",
		CacheDir:   "./.cache/mediapipe",
		Suffix:     ".opt",
		Capture: CaptureConfig{
			Pattern: DefaultCapturePattern,
		},
		Kinds: KindsConfig{
			Image:     []string{".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp"},
			Animation: []string{".gif", ".apng"},
			Video:     []string{".mp4", ".mov", ".m4v", ".webm", ".mkv"},
		},
		External: ExternalConfig{
			Enabled:     true,
			HostPattern: DefaultHostPattern,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Info:   true,
			Warn:   true,
			Error:  true,
		},
		Fetch: FetchConfig{
			Timeout:   30,
			Retries:   3,
			Delay:     "2s",
			Backoff:   RetryBackoffFixed,
			UserAgent: "mediapipe/1.0",
		},
		Probe: ProbeConfig{
			Args: DefaultProbeArgs,
		},
		Encode: EncodeConfig{
			Image:        ptr("ffmpeg -y -v error -i {input} -c:v libwebp -quality 80 {output}"),
			Animation:    ptr("ffmpeg -y -v error -i {input} -c:v libwebp_anim -loop 0 -quality 75 {output}"),
			Video:        ptr("ffmpeg -y -v error -i {input} -c:v libvpx-vp9 -crf 33 -b:v 0 -c:a libopus {output}"),
			Poster:       ptr("ffmpeg -y -v error -i {input} -frames:v 1 -q:v 3 {output}"),
			ImageExt:     ".webp",
			AnimationExt: ".webp",
			VideoExt:     ".webm",
			PosterExt:    ".jpg",
		},
		Build: BuildConfig{
			MaxWidth: 800,
			Poster:   PosterAuto,
		},
		Pipeline: PipelineConfig{
			Concurrency: 8,
		},
	}
}

func ptr(s string) *string { return &s }

// normalize lowercases extension lists and fills blanks left by partial YAML.
func (c *Config) normalize() {
	c.Kinds.Image = normalizeExts(c.Kinds.Image)
	c.Kinds.Animation = normalizeExts(c.Kinds.Animation)
	c.Kinds.Video = normalizeExts(c.Kinds.Video)

	if c.PublicPath == "" {
		c.PublicPath = "/"
	}
	if !strings.HasSuffix(c.PublicPath, "/") {
		c.PublicPath += "/"
	}
	if c.Fetch.Backoff == "" {
		c.Fetch.Backoff = RetryBackoffFixed
	} else if m := NormalizeRetryBackoff(string(c.Fetch.Backoff)); m != "" {
		c.Fetch.Backoff = m
	}
	if f := logFormats.Normalize(c.Logging.Format); f != "" {
		c.Logging.Format = f
	}
	c.Build.Poster = strings.TrimSpace(c.Build.Poster)
	if c.Build.Poster == "" {
		c.Build.Poster = PosterNone
	}
	for i, p := range c.Transform.Skip {
		c.Transform.Skip[i] = strings.ToLower(strings.TrimSpace(p))
	}
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Command returns the configured command for a kind, or "" when disabled.
func (e EncodeConfig) Command(kind string) string {
	var p *string
	switch kind {
	case "image":
		p = e.Image
	case "animation":
		p = e.Animation
	case "video":
		p = e.Video
	case "poster":
		p = e.Poster
	}
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// Ext returns the derivative file extension for a kind.
func (e EncodeConfig) Ext(kind string) string {
	switch kind {
	case "image":
		return e.ImageExt
	case "animation":
		return e.AnimationExt
	case "video":
		return e.VideoExt
	case "poster":
		return e.PosterExt
	}
	return ""
}

// PosterMode splits Build.Poster into its mode and, for fixed mode, the shared URL.
func (b BuildConfig) PosterMode() (mode string, fixedURL string) {
	if strings.HasPrefix(b.Poster, PosterFixedPrefix) {
		return "fixed", strings.TrimSpace(strings.TrimPrefix(b.Poster, PosterFixedPrefix))
	}
	return b.Poster, ""
}
