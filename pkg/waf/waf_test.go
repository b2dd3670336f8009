package waf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFingerprintCloudflareHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Cf-Ray", "8a1b2c3d4e5f6789-FRA")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := NewFingerprinter(WithClient(srv.Client()))
	fp, err := f.Fingerprint(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !fp.Detected {
		t.Error("expected detection")
	}
	if fp.Vendor != "Cloudflare" {
		t.Errorf("vendor = %q, want Cloudflare", fp.Vendor)
	}
	if fp.Confidence < ConfidenceThreshold || fp.Confidence > 1.0 {
		t.Errorf("confidence = %v, want within [%v, 1.0]", fp.Confidence, ConfidenceThreshold)
	}
	if fp.BaselineStatus != http.StatusOK {
		t.Errorf("baseline status = %d, want 200", fp.BaselineStatus)
	}
}

func TestFingerprintProbeTriggered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery == "" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("<html>clean</html>"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("This error was generated by Mod_Security rules."))
	}))
	defer srv.Close()

	f := NewFingerprinter(WithClient(srv.Client()))
	fp, err := f.Fingerprint(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Vendor != "ModSecurity" {
		t.Errorf("vendor = %q, want ModSecurity", fp.Vendor)
	}
	if !fp.Detected {
		t.Errorf("expected detection, confidence = %v", fp.Confidence)
	}
}

func TestFingerprintNoWAF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>plain site</html>"))
	}))
	defer srv.Close()

	f := NewFingerprinter(WithClient(srv.Client()))
	fp, err := f.Fingerprint(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Detected {
		t.Errorf("unexpected detection: vendor=%q confidence=%v", fp.Vendor, fp.Confidence)
	}
}

func TestFingerprintBaselineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // unreachable from the start

	f := NewFingerprinter()
	_, err := f.Fingerprint(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for unreachable target")
	}
	if !errors.Is(err, ErrTargetUnreachable) {
		t.Errorf("error = %v, want ErrTargetUnreachable", err)
	}
}

func TestFingerprintContextCancelled(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			<-blocked
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	f := NewFingerprinter(WithClient(srv.Client()))

	done := make(chan error, 1)
	go func() {
		_, err := f.Fingerprint(ctx, srv.URL)
		done <- err
	}()
	cancel()
	if err := <-done; err == nil {
		t.Error("expected error after cancellation")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		fp     *Fingerprint
		status int
		header http.Header
		body   string
		want   bool
	}{
		{
			name:   "generic 403",
			fp:     &Fingerprint{BaselineStatus: 200},
			status: http.StatusForbidden,
			want:   true,
		},
		{
			name:   "generic 200 passes",
			fp:     &Fingerprint{BaselineStatus: 200},
			status: http.StatusOK,
			want:   false,
		},
		{
			name:   "403-everywhere site ignored",
			fp:     &Fingerprint{BaselineStatus: 403},
			status: http.StatusForbidden,
			want:   false,
		},
		{
			name:   "vendor body pattern on 200",
			fp:     &Fingerprint{Vendor: "Cloudflare", BaselineStatus: 200},
			status: http.StatusOK,
			body:   "Attention Required! | Cloudflare",
			want:   true,
		},
		{
			name:   "rate limited",
			fp:     &Fingerprint{BaselineStatus: 200},
			status: http.StatusTooManyRequests,
			want:   true,
		},
		{
			name:   "nil fingerprint falls back to status",
			fp:     nil,
			status: http.StatusNotAcceptable,
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			if got := tt.fp.Matches(tt.status, h, tt.body); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlockStatus(t *testing.T) {
	for _, code := range []int{403, 406, 418, 429, 503} {
		if !IsBlockStatus(code) {
			t.Errorf("IsBlockStatus(%d) = false", code)
		}
	}
	for _, code := range []int{200, 301, 404, 500} {
		if IsBlockStatus(code) {
			t.Errorf("IsBlockStatus(%d) = true", code)
		}
	}
}

func TestVendors(t *testing.T) {
	vendors := Vendors()
	if len(vendors) == 0 {
		t.Fatal("no vendors")
	}
	for _, want := range []string{"Cloudflare", "Akamai", "Imperva", "AWS WAF", "ModSecurity"} {
		found := false
		for _, v := range vendors {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("vendor %s missing from %v", want, vendors)
		}
	}
}

func TestSignaturePatternsCompileAgainstSampleBlocks(t *testing.T) {
	samples := map[string]string{
		"Cloudflare": "Attention Required! Cloudflare Ray ID: 12345",
		"Imperva":    "Incident ID: 443000190078",
		"F5 BIG-IP":  "The requested URL was rejected. Please consult with your administrator.",
		"Sucuri":     "Sucuri Website Firewall - Access Denied",
	}
	for vendor, body := range samples {
		sig := signatureFor(vendor)
		if sig == nil {
			t.Fatalf("no signature for %s", vendor)
		}
		if !sig.matches(200, http.Header{}, body) {
			t.Errorf("%s signature did not match sample block page", vendor)
		}
	}
}

func TestFingerprintProbeFailureTolerated(t *testing.T) {
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if r.URL.RawQuery != "" {
			// Kill probe connections without a response
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
				return
			}
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFingerprinter(WithClient(srv.Client()))
	fp, err := f.Fingerprint(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("probe failures must not fail fingerprinting: %v", err)
	}
	if fp.Detected {
		t.Error("unexpected detection")
	}
	if n < 2 {
		t.Errorf("server saw %d requests, want baseline plus probes", n)
	}
}

func TestProbeQueriesLookSuspicious(t *testing.T) {
	for _, p := range probes {
		if p.query == "" || !strings.Contains(p.query, "=") {
			t.Errorf("probe %s has malformed query %q", p.name, p.query)
		}
	}
}
