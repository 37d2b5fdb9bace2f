package hoardlib

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestClientPoolSelectsSession(t *testing.T) {
	cp, err := NewClientPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cp.ClientFor("vsco") != cp.impersonate {
		t.Error("impersonated domain should use the browser session")
	}
	if cp.ClientFor("anything-else") != cp.normal {
		t.Error("regular domains use the normal session")
	}
	if !IsImpersonated("celebforum") || IsImpersonated("example") {
		t.Error("impersonation allow list broken")
	}
}

func TestClientPoolRequestHeaders(t *testing.T) {
	cp, err := NewClientPool(&ClientPoolOpts{UserAgent: "agent/7"})
	if err != nil {
		t.Fatal(err)
	}
	headers := Headers{{"Referer", "https://from.test/page"}}
	req, err := cp.NewRequest(context.Background(), http.MethodGet, "https://host.test/a", "plain", headers)
	if err != nil {
		t.Fatal(err)
	}
	if got := req.Header.Get("User-Agent"); got != "agent/7" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := req.Header.Get("Referer"); got != "https://from.test/page" {
		t.Errorf("Referer = %q", got)
	}
	if req.Header.Get("Sec-Fetch-Mode") != "" {
		t.Error("plain domains must not get browser headers")
	}

	impReq, err := cp.NewRequest(context.Background(), http.MethodGet, "https://vsco.co/a", "vsco", nil)
	if err != nil {
		t.Fatal(err)
	}
	if impReq.Header.Get("Sec-Fetch-Mode") == "" {
		t.Error("impersonated domains get browser-shaped headers")
	}
}

func TestClientPoolSharedJar(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cret", Path: "/"})
	}))
	defer srv.Close()

	cp, err := NewClientPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := cp.normal.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	// The jar is shared, so the second session presents the cookie.
	resp, err = cp.impersonate.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotCookie != "s3cret" {
		t.Errorf("jar not shared across sessions, got %q", gotCookie)
	}
}

func TestClientPoolJarInstall(t *testing.T) {
	cp, err := NewClientPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse("https://example.test/")
	cp.Jar().SetCookies(u, []*http.Cookie{{Name: "k", Value: "v", Path: "/"}})
	got := cp.Jar().Cookies(u)
	if len(got) != 1 || got[0].Value != "v" {
		t.Errorf("jar round-trip = %v", got)
	}
}
