package pfp

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultCDNBase is the image resizing CDN prefix
const DefaultCDNBase = "https://solana-cdn.com/cdn-cgi/image"

// ResizeOptions are passed to the resizing CDN
type ResizeOptions struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Fit     string `json:"fit,omitempty"`
}

// directive renders the options as the CDN's comma separated k=v list
func (o ResizeOptions) directive() string {
	var parts []string
	add := func(k, v string) {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	if o.Width > 0 {
		add("width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		add("height", strconv.Itoa(o.Height))
	}
	if o.Quality > 0 {
		add("quality", strconv.Itoa(o.Quality))
	}
	if o.Fit != "" {
		add("fit", o.Fit)
	}
	if len(parts) == 0 {
		add("width", "100")
	}
	return strings.Join(parts, ",")
}

// CanBeResized reports whether the CDN can resize the image. Vector, animated
// and inline images are served as is.
func CanBeResized(u string) bool {
	return !(strings.Contains(u, ".svg") ||
		strings.HasSuffix(u, "=svg") ||
		strings.HasSuffix(u, ".gif") ||
		strings.HasSuffix(u, "=gif") ||
		strings.HasPrefix(u, "data:"))
}

// ResizedURL routes u through the resizing CDN at base
func ResizedURL(base, u string, opts ResizeOptions) string {
	if u == "" || !CanBeResized(u) {
		return u
	}
	if base == "" {
		base = DefaultCDNBase
	}
	return strings.TrimSuffix(base, "/") + "/" + opts.directive() + "/" + u
}
