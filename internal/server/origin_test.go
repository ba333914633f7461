package server

import (
	"net/http/httptest"
	"testing"
)

func TestOriginAllowlist(t *testing.T) {
	cases := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header always allowed", []string{"http://localhost:3000"}, "", true},
		{"wildcard allows anything", []string{"*"}, "http://evil.example.com", true},
		{"exact match", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"host match without scheme", []string{"localhost:3000"}, "http://localhost:3000", true},
		{"case insensitive", []string{"http://Localhost:3000"}, "http://localhost:3000", true},
		{"mismatch rejected", []string{"http://localhost:3000"}, "http://evil.example.com", false},
		{"empty allowlist rejects browsers", nil, "http://localhost:3000", false},
		{"unparseable origin rejected", []string{"*anything"}, "http://bad origin", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws/investigations/x", nil)
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			up := newUpgrader(tc.origins)
			if got := up.CheckOrigin(r); got != tc.want {
				t.Errorf("CheckOrigin(%q) with %v = %v, want %v", tc.origin, tc.origins, got, tc.want)
			}
		})
	}
}
