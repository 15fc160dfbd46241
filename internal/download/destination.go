package download

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RemoteDir is the mirror subdirectory for absolute URLs outside the serve prefix.
const RemoteDir = "remote"

// Destination maps a captured URI to its local mirror path. remote reports
// whether the file has to be fetched; relative and local URIs never are.
func (d *Downloader) Destination(uri string) (dest string, remote bool, err error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return "", false, fmt.Errorf("parse uri %q: %w", uri, err)
	}

	if !isAbsoluteHTTP(u) {
		if u.Scheme != "" && u.Scheme != "file" {
			return "", false, fmt.Errorf("unsupported uri scheme %q", u.Scheme)
		}
		rel, err := confine(u.Path)
		if err != nil {
			return "", false, err
		}
		return filepath.Join(d.mirrorRoot, rel), false, nil
	}

	if d.servePrefix != "" && strings.HasPrefix(uri, d.servePrefix) {
		rest := strings.TrimPrefix(uri, d.servePrefix)
		if i := strings.IndexAny(rest, "?#"); i >= 0 {
			rest = rest[:i]
		}
		if unescaped, err := url.PathUnescape(rest); err == nil {
			rest = unescaped
		}
		rel, err := confine(rest)
		if err != nil {
			return "", false, err
		}
		return filepath.Join(d.mirrorRoot, rel), true, nil
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "", false, fmt.Errorf("url %q has no file name", uri)
	}
	return filepath.Join(d.mirrorRoot, RemoteDir, norm.NFC.String(name)), true, nil
}

func isAbsoluteHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// confine cleans a slash-separated path so it cannot escape the mirror root
// and normalizes it to NFC.
func confine(p string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return "", fmt.Errorf("empty path %q", p)
	}
	return filepath.FromSlash(norm.NFC.String(cleaned)), nil
}
