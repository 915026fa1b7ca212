package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Page is the part of an HTTP response the detectors look at.
type Page struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector reports whether a page is a bot-protection block or challenge,
// and which vendor served it.
type Detector func(p *Page) (detected bool, source string)

// DefaultDetectors returns every detector, search-engine specific ones first.
func DefaultDetectors() []Detector {
	return []Detector{
		detectDuckDuckGo,
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Analyze runs p through detectors and returns the first hit.
func Analyze(p *Page, detectors []Detector) (bool, string) {
	if p == nil {
		return false, ""
	}
	for _, d := range detectors {
		if detected, source := d(p); detected {
			return true, source
		}
	}
	return false, ""
}

func header(h http.Header, key string) string {
	if h == nil {
		return ""
	}
	return h.Get(key)
}

func bodyHasAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

// detectDuckDuckGo recognises the anomaly page DuckDuckGo serves instead of
// results when it suspects automated traffic. It arrives with a 2xx status,
// so it must be checked regardless of the code.
func detectDuckDuckGo(p *Page) (bool, string) {
	if bodyHasAny(p.Body, "anomaly-modal", "bots use DuckDuckGo too", "challenge-form") {
		return true, "DuckDuckGo"
	}
	return false, ""
}

func detectCloudflare(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(p.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bodyHasAny(p.Body, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(p.Headers, "Server")), "akamai") {
		return true, "Akamai"
	}
	if bytes.Contains(p.Body, []byte("Reference #")) && bytes.Contains(p.Body, []byte("Access Denied")) {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header(p.Headers, "Server")), "datadome") ||
		header(p.Headers, "X-DataDome") != "" || header(p.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if bodyHasAny(p.Body, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(p *Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if header(p.Headers, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if bodyHasAny(p.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}
