// Command exploitprobe is a reference driver for the decision engine:
// it captures a baseline for one obstacle, then iterates a payload list
// and prints the verdict for each probe. Real deployments embed
// pkg/engine behind their own orchestrator instead.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
	"github.com/exploitprobe/exploitprobe/pkg/engine"
	"github.com/exploitprobe/exploitprobe/pkg/fingerprint"
	"github.com/exploitprobe/exploitprobe/pkg/httpclient"
	"github.com/exploitprobe/exploitprobe/pkg/metrics"
	"github.com/exploitprobe/exploitprobe/pkg/rules"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		targetURL   = flag.String("u", "", "Target URL (required)")
		payloadFile = flag.String("p", "", "Payload file, one payload per line (required)")
		ruleFile    = flag.String("rules", "", "Rule file (YAML); built-in defaults when omitted")
		inject      = flag.String("inject", "query", "Injection point: query, body, header, path")
		param       = flag.String("param", "q", "Parameter or header name to inject into")
		method      = flag.String("method", "", "HTTP method (default GET, POST for body injection)")
		family      = flag.String("family", "", "Mutation family label for decay tracking")
		timeout     = flag.Int("timeout", int(defaults.ProbeTimeout/time.Second), "Probe timeout in seconds")
		rateLimit   = flag.Int("rate-limit", defaults.ProbeRateLimit, "Max probes per second")
		skipVerify  = flag.Bool("k", true, "Skip TLS verification")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *targetURL == "" || *payloadFile == "" {
		fmt.Fprintln(os.Stderr, "usage: exploitprobe -u <url> -p <payload-file> [flags]")
		flag.PrintDefaults()
		return 2
	}

	point, err := fingerprint.ParseInjectionPoint(*inject)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	payloads, err := readPayloads(*payloadFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := rules.NewRegistry(*ruleFile, rules.WithLogger(logger))
	capturer := fingerprint.NewCapturer(httpclient.Config{
		Timeout:            time.Duration(*timeout) * time.Second,
		InsecureSkipVerify: *skipVerify,
	}, fingerprint.WithLogger(logger))

	eng := engine.New(registry,
		engine.WithLogger(logger),
		engine.WithCapturer(capturer),
		engine.WithMetrics(metrics.New()),
		engine.WithRateLimit(*rateLimit),
	)

	obs := engine.Obstacle{
		ID:    *targetURL + "#" + *param,
		URL:   *targetURL,
		Point: point,
		Param: *param,
		Options: fingerprint.RequestOptions{
			Method: *method,
		},
	}

	baseline, err := eng.CaptureBaseline(ctx, obs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "baseline capture failed:", err)
		return 1
	}
	fmt.Printf("[*] baseline: status=%d len=%d mean=%.1fms stddev=%.1fms\n",
		baseline.BaselineFingerprint().StatusCode,
		baseline.BaselineFingerprint().BodyLength,
		baseline.Stats.MeanResponseTimeMs,
		baseline.Stats.StdDevResponseTimeMs)

	for _, payload := range payloads {
		verdict, err := eng.Probe(ctx, obs, payload, *family)
		if errors.Is(err, engine.ErrCircuitOpen) {
			fmt.Println("[!] circuit breaker open, stopping")
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "probe failed:", err)
			return 1
		}

		fp := verdict.Result.Fingerprint
		fmt.Printf("[%s] %-9s status=%-3d class=%-18s score=%.2f payload=%q\n",
			verdict.ProbeID[:8], verdict.StateName, fp.StatusCode,
			fp.ErrorClass.String(), verdict.Score.WeightedTotal, truncate(payload, 48))

		if verdict.Confirmed {
			fmt.Println("[+] exploit confirmed")
			break
		}
		if verdict.Abandon {
			fmt.Println("[-] abandon threshold reached")
			break
		}
	}

	for _, status := range eng.FamilyStatus() {
		fmt.Printf("[*] family %s: last=%.2f decay=%v\n",
			status.Family, status.LastScore, status.DecayDetected)
	}
	return 0
}

func readPayloads(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open payload file: %w", err)
	}
	defer f.Close()

	var payloads []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		payloads = append(payloads, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return payloads, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
