package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/exploitprobe/exploitprobe/pkg/bufpool"
	"github.com/exploitprobe/exploitprobe/pkg/defaults"
	"github.com/exploitprobe/exploitprobe/pkg/httpclient"
)

// InjectionPoint indicates where a payload is placed in the request.
type InjectionPoint int

const (
	// InjectQuery places the payload in a query parameter.
	InjectQuery InjectionPoint = iota
	// InjectBody places the payload in the request body (JSON or form).
	InjectBody
	// InjectHeader places the payload in a request header.
	InjectHeader
	// InjectPath appends the payload as a path segment.
	InjectPath
)

// String returns a human-readable name for the injection point.
func (p InjectionPoint) String() string {
	names := [...]string{"query", "body", "header", "path"}
	if int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// ParseInjectionPoint maps a name to its InjectionPoint.
func ParseInjectionPoint(name string) (InjectionPoint, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "query":
		return InjectQuery, nil
	case "body":
		return InjectBody, nil
	case "header":
		return InjectHeader, nil
	case "path":
		return InjectPath, nil
	}
	return 0, errors.New("unknown injection point: " + name)
}

// RequestOptions configures a single probe request.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	// Headers are sent verbatim (canonical casing applied by net/http).
	Headers map[string]string
	// Body is the request body, if any.
	Body string
	// Timeout bounds the whole request client-side
	// (default: defaults.ProbeTimeout).
	Timeout time.Duration
	// FollowRedirects makes the probe chase redirect chains and record
	// each hop. Off by default so redirects fingerprint as themselves.
	FollowRedirects bool
}

// ExecutionResult is the full outcome of one probe.
type ExecutionResult struct {
	Fingerprint Fingerprint `json:"fingerprint"`

	// RawBody is the (read-capped) body of the final response. Kept out
	// of the fingerprint so only bounded samples outlive the probe.
	RawBody string `json:"-"`

	// RedirectChain lists the intermediate hop URLs when redirects were
	// followed.
	RedirectChain []string `json:"redirect_chain,omitempty"`

	// Error carries the underlying transport error message when the
	// probe failed. The fingerprint is still populated — callers score
	// failures like any other response.
	Error string `json:"error,omitempty"`
}

// Baseline is the output of sampling an unmodified request several
// times: the per-sample fingerprints plus their timing aggregate.
type Baseline struct {
	Fingerprints []Fingerprint `json:"fingerprints"`
	Stats        TimingStats   `json:"stats"`
}

// BaselineFingerprint collapses the baseline samples into a single
// comparable fingerprint: the first sample's shape with all timing
// samples attached. Returns a zero fingerprint for an empty baseline.
func (b *Baseline) BaselineFingerprint() Fingerprint {
	if len(b.Fingerprints) == 0 {
		return Fingerprint{Headers: map[string]string{}}
	}
	fp := b.Fingerprints[0]
	var all []float64
	for _, s := range b.Fingerprints {
		all = append(all, s.ResponseTimesMs...)
	}
	fp.ResponseTimesMs = all
	return fp
}

// Capturer fires probe requests and reduces responses to fingerprints.
// Safe for concurrent use; all probes share one pooled transport.
type Capturer struct {
	cfg       httpclient.Config
	transport http.RoundTripper
	logger    *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithLogger sets a custom structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) { c.logger = l }
}

// NewCapturer creates a Capturer. Zero-value config fields fall back to
// the probing defaults.
func NewCapturer(cfg httpclient.Config, opts ...Option) *Capturer {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.ProbeTimeout
	}
	c := &Capturer{
		cfg:       cfg,
		transport: httpclient.New(cfg).Transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExecuteRequest fires one probe and fingerprints whatever comes back.
// It never returns an error: transport failures yield a fingerprint
// with a sentinel status (408 timeout, 0 connection failure) and the
// matching error class, with the underlying message in result.Error.
func (c *Capturer) ExecuteRequest(ctx context.Context, rawURL string, opts RequestOptions) *ExecutionResult {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != "" {
		bodyReader = strings.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return failureResult(err, 0)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaults.ToolName+"/"+defaults.Version)
	}

	var chain []string
	client := &http.Client{Transport: c.transport}
	if opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			chain = append(chain, req.URL.String())
			return nil
		}
	} else {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return failureResult(err, elapsedMs)
	}
	defer resp.Body.Close()

	result := &ExecutionResult{RedirectChain: chain}
	body, readErr := bufpool.ReadLimited(resp.Body, defaults.MaxBodyRead)
	if readErr != nil {
		// Partial body still fingerprints; the read error is surfaced
		// alongside, not instead of, the response.
		result.Error = readErr.Error()
		c.logger.Warn("body read truncated by error",
			slog.String("url", rawURL),
			slog.String("error", readErr.Error()))
	}

	headers := make(map[string]string, len(resp.Header))
	for name, values := range resp.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	sample := string(body)
	if len(sample) > defaults.BodySampleSize {
		sample = sample[:defaults.BodySampleSize]
	}

	result.RawBody = string(body)
	result.Fingerprint = Fingerprint{
		StatusCode:      resp.StatusCode,
		BodyHash:        HashBody(body),
		BodyLength:      len(body),
		ResponseTimesMs: []float64{elapsedMs},
		Headers:         headers,
		ErrorClass:      Classify(resp.StatusCode, sample),
		RawBodySample:   sample,
	}
	return result
}

// failureResult converts a transport error into the sentinel
// fingerprint shape.
func failureResult(err error, elapsedMs float64) *ExecutionResult {
	status := 0
	class := ErrorClassConnection
	if isTimeout(err) {
		status = 408
		class = ErrorClassTimeout
	}
	return &ExecutionResult{
		Error: err.Error(),
		Fingerprint: Fingerprint{
			StatusCode:      status,
			ResponseTimesMs: []float64{elapsedMs},
			Headers:         map[string]string{},
			ErrorClass:      class,
		},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CaptureBaseline issues sampleCount sequential probes against the
// unmodified request, sleeping a random 100-200ms between samples to
// shake off cache and CDN artifacts, then aggregates timing stats.
// Samples within one capture are serialized so the sampler cannot
// contaminate its own statistics; captures for different obstacles may
// run concurrently. The only error returned is context cancellation,
// alongside whatever samples were already collected.
func (c *Capturer) CaptureBaseline(ctx context.Context, rawURL string, opts RequestOptions, sampleCount int) (*Baseline, error) {
	if sampleCount <= 0 {
		sampleCount = defaults.BaselineSamples
	}

	baseline := &Baseline{}
	for i := 0; i < sampleCount; i++ {
		if i > 0 {
			jitter := defaults.JitterMin +
				time.Duration(rand.Int63n(int64(defaults.JitterMax-defaults.JitterMin)))
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				baseline.Stats = ComputeTimingStats(baseline.Fingerprints)
				return baseline, ctx.Err()
			}
		}
		res := c.ExecuteRequest(ctx, rawURL, opts)
		baseline.Fingerprints = append(baseline.Fingerprints, res.Fingerprint)
	}
	baseline.Stats = ComputeTimingStats(baseline.Fingerprints)
	return baseline, nil
}

// ExecuteWithPayload mutates the request per the injection point, then
// delegates to ExecuteRequest. The payload travels through unchanged so
// downstream reflection and error detection can match on it.
func (c *Capturer) ExecuteWithPayload(ctx context.Context, rawURL, payload string, point InjectionPoint, paramName string, base RequestOptions) *ExecutionResult {
	opts := base
	// Headers are copied so injection never mutates the caller's map.
	opts.Headers = make(map[string]string, len(base.Headers)+1)
	for k, v := range base.Headers {
		opts.Headers[k] = v
	}

	switch point {
	case InjectQuery:
		u, err := url.Parse(rawURL)
		if err != nil {
			return failureResult(err, 0)
		}
		q := u.Query()
		q.Set(paramName, payload)
		u.RawQuery = q.Encode()
		rawURL = u.String()

	case InjectBody:
		if opts.Method == "" {
			opts.Method = http.MethodPost
		}
		c.injectBody(&opts, paramName, payload)

	case InjectHeader:
		opts.Headers[paramName] = payload

	case InjectPath:
		u, err := url.Parse(rawURL)
		if err != nil {
			return failureResult(err, 0)
		}
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(payload)
		rawURL = u.String()
	}

	return c.ExecuteRequest(ctx, rawURL, opts)
}

// injectBody merges the payload into an existing JSON or form body.
// Content type is inferred from the headers already present; an
// unparsable JSON body falls back to a fresh single-key object rather
// than failing the probe.
func (c *Capturer) injectBody(opts *RequestOptions, paramName, payload string) {
	contentType := ""
	for k, v := range opts.Headers {
		if strings.EqualFold(k, "Content-Type") {
			contentType = v
			break
		}
	}

	isJSON := strings.Contains(contentType, "json") ||
		(contentType == "" && strings.HasPrefix(strings.TrimSpace(opts.Body), "{"))

	if isJSON {
		doc := map[string]any{}
		if opts.Body != "" {
			if err := json.Unmarshal([]byte(opts.Body), &doc); err != nil {
				c.logger.Warn("existing body is not valid JSON, replacing",
					slog.String("param", paramName))
				doc = map[string]any{}
			}
		}
		doc[paramName] = payload
		encoded, err := json.Marshal(doc)
		if err != nil {
			encoded = []byte(`{"` + paramName + `":"` + payload + `"}`)
		}
		opts.Body = string(encoded)
		if contentType == "" {
			opts.Headers["Content-Type"] = "application/json"
		}
		return
	}

	form, err := url.ParseQuery(opts.Body)
	if err != nil {
		form = url.Values{}
	}
	form.Set(paramName, payload)
	opts.Body = form.Encode()
	if contentType == "" {
		opts.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
}
