package bypass

import (
	"net/http"
	"testing"
)

func TestDetectDuckDuckGo(t *testing.T) {
	ok := &Page{StatusCode: 200, Body: []byte(`<div class="results"><div class="result">x</div></div>`)}
	if detected, _ := detectDuckDuckGo(ok); detected {
		t.Errorf("expected normal result page not to be detected")
	}

	blocked := &Page{StatusCode: 202, Body: []byte(`<div class="anomaly-modal__title">Unfortunately, bots use DuckDuckGo too.</div>`)}
	if detected, src := detectDuckDuckGo(blocked); !detected || src != "DuckDuckGo" {
		t.Errorf("expected DuckDuckGo anomaly page to be detected, got %v %q", detected, src)
	}
}

func TestDetectCloudflare(t *testing.T) {
	cases := []struct {
		name string
		page *Page
		want bool
	}{
		{"not blocked", &Page{StatusCode: 200, Headers: http.Header{"Server": {"nginx"}}, Body: []byte("OK")}, false},
		{"server header", &Page{StatusCode: 403, Headers: http.Header{"Server": {"cloudflare"}}}, true},
		{"body signature", &Page{StatusCode: 503, Body: []byte("<html>... cf-turnstile ...</html>")}, true},
		{"signature on 200 ignored", &Page{StatusCode: 200, Body: []byte("cf-turnstile")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, src := detectCloudflare(tc.page)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if got && src != "Cloudflare" {
				t.Errorf("expected Cloudflare source, got %q", src)
			}
		})
	}
}

func TestDetectAkamai(t *testing.T) {
	if detected, src := detectAkamai(&Page{StatusCode: 403, Headers: http.Header{"Server": {"AkamaiGHost"}}}); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by header")
	}
	if detected, _ := detectAkamai(&Page{StatusCode: 403, Body: []byte("Access Denied. Reference #18.abc")}); !detected {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	if detected, _ := detectDataDome(&Page{StatusCode: 403, Headers: http.Header{"X-Datadome": {"protected"}}}); !detected {
		t.Errorf("expected DataDome detection by header")
	}
	if detected, _ := detectDataDome(&Page{StatusCode: 403, Body: []byte("geo.captcha-delivery.com")}); !detected {
		t.Errorf("expected DataDome detection by body")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	if detected, _ := detectPerimeterX(&Page{StatusCode: 403, Body: []byte(`<div id="px-captcha"></div>`)}); !detected {
		t.Errorf("expected PerimeterX detection by body")
	}
}

func TestAnalyze(t *testing.T) {
	if detected, _ := Analyze(nil, DefaultDetectors()); detected {
		t.Errorf("nil page must not be detected")
	}

	detected, src := Analyze(&Page{StatusCode: 403, Headers: http.Header{"Server": {"cloudflare"}}}, DefaultDetectors())
	if !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare, got %v %q", detected, src)
	}

	if detected, _ := Analyze(&Page{StatusCode: 200, Body: []byte("fine")}, DefaultDetectors()); detected {
		t.Errorf("expected clean page to pass")
	}
}
