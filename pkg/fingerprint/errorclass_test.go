package fingerprint

import "testing"

func TestClassifyOrdering(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorClass
	}{
		{"sql error beats 5xx", 500, "You have an error in your SQL syntax", ErrorClassSQL},
		{"sql error beats 200", 200, "Warning: mysqli_query(): SQL syntax error", ErrorClassSQL},
		{"template error", 500, "jinja2.exceptions.TemplateSyntaxError: unexpected '}'", ErrorClassTemplate},
		{"waf block beats auth on 403", 403, "Request blocked by security policy", ErrorClassWAFBlock},
		{"plain 403 is auth failure", 403, "<html>forbidden</html>", ErrorClassAuthFailure},
		{"401 is auth failure", 401, "unauthorized", ErrorClassAuthFailure},
		{"429 is rate limit", 429, "slow down", ErrorClassRateLimit},
		{"5xx carries its code", 502, "bad gateway", ErrorClass("SERVER_ERROR_502")},
		{"4xx carries its code", 404, "not found", ErrorClass("CLIENT_ERROR_404")},
		{"3xx is redirect", 302, "", ErrorClassRedirect},
		{"200 with clean body is none", 200, "hello world", ErrorClassNone},
		{"waf keyword without 403 does not block-classify", 200, "nothing was blocked here", ErrorClassNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, tt.body); got != tt.want {
				t.Errorf("Classify(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if got := Classify(200, "UNCLOSED QUOTATION MARK after the character string"); got != ErrorClassSQL {
		t.Errorf("expected SQL_ERROR for uppercase signature, got %s", got)
	}
}

func TestErrorClassString(t *testing.T) {
	if ErrorClassNone.String() != "none" {
		t.Errorf("null class should render as none, got %q", ErrorClassNone.String())
	}
	if !ErrorClassNone.None() {
		t.Error("zero value should report None")
	}
	if ErrorClassSQL.None() {
		t.Error("SQL_ERROR should not report None")
	}
}
