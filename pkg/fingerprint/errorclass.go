package fingerprint

import (
	"fmt"
	"strings"
)

// ErrorClass is the normalized classification of a probe response.
// The zero value ErrorClassNone means the response matched no rule.
type ErrorClass string

const (
	// ErrorClassNone indicates no classification matched.
	ErrorClassNone ErrorClass = ""
	// ErrorClassSQL indicates a database error signature in the body.
	ErrorClassSQL ErrorClass = "SQL_ERROR"
	// ErrorClassTemplate indicates a template-engine error signature.
	ErrorClassTemplate ErrorClass = "TEMPLATE_ERROR"
	// ErrorClassWAFBlock indicates a 403 carrying WAF block wording.
	ErrorClassWAFBlock ErrorClass = "WAF_BLOCK"
	// ErrorClassRateLimit indicates a 429 response.
	ErrorClassRateLimit ErrorClass = "RATE_LIMIT"
	// ErrorClassAuthFailure indicates a 401/403 without WAF wording.
	ErrorClassAuthFailure ErrorClass = "AUTH_FAILURE"
	// ErrorClassRedirect indicates a 3xx response.
	ErrorClassRedirect ErrorClass = "REDIRECT"
	// ErrorClassTimeout indicates the probe hit its client-side deadline.
	ErrorClassTimeout ErrorClass = "TIMEOUT"
	// ErrorClassConnection indicates a transport failure before a response.
	ErrorClassConnection ErrorClass = "CONNECTION_ERROR"
)

// ServerErrorClass builds the class for a specific 5xx status,
// e.g. SERVER_ERROR_500.
func ServerErrorClass(status int) ErrorClass {
	return ErrorClass(fmt.Sprintf("SERVER_ERROR_%d", status))
}

// ClientErrorClass builds the class for a specific 4xx status,
// e.g. CLIENT_ERROR_404.
func ClientErrorClass(status int) ErrorClass {
	return ErrorClass(fmt.Sprintf("CLIENT_ERROR_%d", status))
}

// None reports whether the class is the null classification.
func (e ErrorClass) None() bool { return e == ErrorClassNone }

// String returns the wire representation, "none" for the null class.
func (e ErrorClass) String() string {
	if e == ErrorClassNone {
		return "none"
	}
	return string(e)
}

// sqlErrorSignatures are lowercase substrings that identify database
// error pages across the common engines.
var sqlErrorSignatures = []string{
	"sql syntax",
	"you have an error in your sql",
	"unclosed quotation mark",
	"quoted string not properly terminated",
	"syntax error at or near",
	"sqlstate[",
	"sqlstate ",
	"mysql_fetch",
	"mysqli_",
	"pg_query",
	"pg_exec",
	"ora-00",
	"ora-01",
	"sqlite3::",
	"sqlite error",
	"odbc driver",
	"jdbc exception",
	"db2 sql error",
}

// templateErrorSignatures identify server-side template engine failures.
var templateErrorSignatures = []string{
	"templatesyntaxerror",
	"jinja2.exceptions",
	"twig_error",
	"twig\\error",
	"freemarker.template",
	"freemarker.core",
	"velocity.exception",
	"org.thymeleaf",
	"smarty error",
	"liquid error",
	"erb syntax error",
	"unable to parse template",
	"mustache render error",
}

// wafBlockKeywords identify WAF block pages. Only consulted for 403s.
var wafBlockKeywords = []string{
	"blocked",
	"denied",
	"forbidden by rule",
	"security policy",
	"web application firewall",
	"request rejected",
	"unusual traffic",
	"not acceptable",
}

// Classify reduces a status code and a body sample to an ErrorClass.
//
// Rules are evaluated top to bottom, first match wins, so signature
// classes shadow the generic status classes: a 403 with a WAF block page
// classifies as WAF_BLOCK, never CLIENT_ERROR_403. The 401/403 check
// runs before the generic 4xx rule so AUTH_FAILURE stays reachable.
func Classify(statusCode int, bodySample string) ErrorClass {
	body := strings.ToLower(bodySample)

	for _, sig := range sqlErrorSignatures {
		if strings.Contains(body, sig) {
			return ErrorClassSQL
		}
	}
	for _, sig := range templateErrorSignatures {
		if strings.Contains(body, sig) {
			return ErrorClassTemplate
		}
	}
	if statusCode == 403 {
		for _, kw := range wafBlockKeywords {
			if strings.Contains(body, kw) {
				return ErrorClassWAFBlock
			}
		}
	}

	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 500 && statusCode < 600:
		return ServerErrorClass(statusCode)
	case statusCode == 401 || statusCode == 403:
		return ErrorClassAuthFailure
	case statusCode >= 400 && statusCode < 500:
		return ClientErrorClass(statusCode)
	case statusCode >= 300 && statusCode < 400:
		return ErrorClassRedirect
	}
	return ErrorClassNone
}
