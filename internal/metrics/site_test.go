package metrics

import "testing"

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"catalog index", "https://eur-lex.europa.eu/oj/daily-view/L-series/default.html?ojDate=02102023", "eur-lex.europa.eu"},
		{"mixed case", "https://EUR-Lex.Europa.eu/legal-content/EN/ALL/", "eur-lex.europa.eu"},
		{"no scheme", "eur-lex.europa.eu/path", "eur-lex.europa.eu"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"https://eur-lex.europa.eu", "http://localhost", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
