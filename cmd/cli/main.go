// Command xssed probes URLs for reflected XSS and verifies execution in a
// headless browser before reporting anything as a finding.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/xssed/xssed/pkg/config"
	"github.com/xssed/xssed/pkg/output"
	"github.com/xssed/xssed/pkg/reflection"
	"github.com/xssed/xssed/pkg/scanner"
	"github.com/xssed/xssed/pkg/ui"
)

const usage = `xssed - reflected XSS scanner with browser verification

Usage:
  xssed -t <url> [options]
  xssed -l urls.txt [options]
  cat urls.txt | xssed [options]

Options:
  -t, -target string      Target URL (must carry query parameters)
  -l, -list string        File with one candidate URL per line
  -config string          YAML config file (flags override it)
  -c int                  Reflection probe concurrency (default 10)
  -vc int                 Browser verification concurrency (default 3)
  -timeout int            Per-request timeout in seconds
  -rate-limit int         Max requests per second per host (0 = unlimited)
  -max-urls int           Cap on candidate URLs (0 = unlimited)
  -p, -payloads string    Extra payload templates, one per line
  -o, -output string      JSON report path ("-" for stdout)
  -proxy string           HTTP proxy for probe and browser traffic
  -no-waf-check           Skip WAF fingerprinting
  -screenshots            Capture a screenshot per verified finding
  -screenshot-dir string  Screenshot directory (default "screenshots")
  -silent                 Suppress banner and progress output
  -no-color               Disable colored output
  -version                Print version and exit
`

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("xssed", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	var (
		target     = fs.String("t", "", "target URL")
		listFile   = fs.String("l", "", "candidate URL list file")
		configFile = fs.String("config", "", "YAML config file")

		concurrency   = fs.Int("c", 0, "reflection concurrency")
		verifyConc    = fs.Int("vc", 0, "verification concurrency")
		timeoutSec    = fs.Int("timeout", 0, "request timeout seconds")
		rateLimit     = fs.Int("rate-limit", -1, "requests per second per host")
		maxURLs       = fs.Int("max-urls", -1, "candidate URL cap")
		payloadFile   = fs.String("p", "", "payload template file")
		outputFile    = fs.String("o", "", "JSON report path")
		proxy         = fs.String("proxy", "", "HTTP proxy URL")
		noWAFCheck    = fs.Bool("no-waf-check", false, "skip WAF fingerprinting")
		screenshots   = fs.Bool("screenshots", false, "capture screenshots")
		screenshotDir = fs.String("screenshot-dir", "", "screenshot directory")
		silent        = fs.Bool("silent", false, "suppress progress output")
		noColor       = fs.Bool("no-color", false, "disable colors")
		version       = fs.Bool("version", false, "print version")
	)
	fs.StringVar(target, "target", "", "target URL")
	fs.StringVar(listFile, "list", "", "candidate URL list file")
	fs.StringVar(payloadFile, "payloads", "", "payload template file")
	fs.StringVar(outputFile, "output", "", "JSON report path")
	fs.Parse(os.Args[1:])

	if *version {
		fmt.Printf("xssed %s (built %s, commit %s)\n", ui.Version, ui.BuildDate, ui.Commit)
		return 0
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	// Flags overlay the config file so what the user typed always wins.
	if *target != "" {
		cfg.Target = *target
	}
	if *listFile != "" {
		cfg.ListFile = *listFile
	}
	if *concurrency > 0 {
		cfg.ReflectionConcurrency = *concurrency
	}
	if *verifyConc > 0 {
		cfg.VerifyConcurrency = *verifyConc
	}
	if *timeoutSec > 0 {
		cfg.TimeoutSeconds = *timeoutSec
	}
	if *rateLimit >= 0 {
		cfg.RateLimit = *rateLimit
	}
	if *maxURLs >= 0 {
		cfg.MaxURLs = *maxURLs
	}
	if *payloadFile != "" {
		cfg.PayloadFile = *payloadFile
	}
	if *outputFile != "" {
		cfg.OutputFile = *outputFile
	}
	if *proxy != "" {
		cfg.Proxy = *proxy
	}
	if *noWAFCheck {
		cfg.WAFCheck = false
	}
	if *screenshots {
		cfg.Screenshots = true
	}
	if *screenshotDir != "" {
		cfg.ScreenshotDir = *screenshotDir
	}
	if *silent {
		cfg.Silent = true
	}
	if *noColor {
		cfg.NoColor = true
	}

	ui.AutoDetectColor()
	ui.SetSilent(cfg.Silent)
	if cfg.NoColor {
		ui.SetNoColor(true)
	}
	ui.PrintBanner()

	var stdin io.Reader
	if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		stdin = os.Stdin
	}
	candidates, err := collectCandidates(cfg, stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	// Candidates must exist before validation: a pipe-only invocation has
	// neither -t nor -l, and the first piped URL stands in as the target.
	adoptTarget(&cfg, candidates)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		fs.Usage()
		return 2
	}
	if len(candidates) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no scannable URLs (candidates need query parameters)")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var interrupted atomic.Bool
	go func() {
		<-sigChan
		interrupted.Store(true)
		ui.Progressf("interrupt received, finishing in-flight work")
		cancel()
	}()

	sc, err := scanner.New(cfg, scanner.WithProgress(func(msg string) {
		ui.Progressf("%s", msg)
	}))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ui.Progressf("scanning %d candidate(s)", len(candidates))
	out, err := sc.Scan(ctx, candidates)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
		return 1
	}

	if cfg.OutputFile != "" {
		if err := output.WriteFile(cfg.OutputFile, out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		ui.Progressf("report written to %s", cfg.OutputFile)
	}
	if !cfg.Silent {
		output.PrintSummary(os.Stderr, out)
	}

	if interrupted.Load() {
		return 130
	}
	if len(out.VerifiedXSS) > 0 {
		return 1
	}
	return 0
}

// adoptTarget fills an empty Target from the collected candidates so
// pipe-only invocations validate and fingerprint like flag-driven ones.
func adoptTarget(cfg *config.Config, cands []reflection.Candidate) {
	if cfg.Target == "" && cfg.ListFile == "" && len(cands) > 0 {
		cfg.Target = cands[0].RawURL
	}
}

// collectCandidates gathers candidate URLs from the target flag, the list
// file, and stdin (when piped), in that order. URLs without query
// parameters are skipped with a warning rather than failing the run.
func collectCandidates(cfg config.Config, stdin io.Reader) ([]reflection.Candidate, error) {
	var raw []string
	if cfg.Target != "" {
		raw = append(raw, cfg.Target)
	}
	if cfg.ListFile != "" {
		lines, err := readLines(cfg.ListFile)
		if err != nil {
			return nil, fmt.Errorf("read url list: %w", err)
		}
		raw = append(raw, lines...)
	}
	if stdin != nil {
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			raw = append(raw, sc.Text())
		}
	}

	seen := make(map[string]struct{}, len(raw))
	var out []reflection.Candidate
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		cand, err := reflection.ParseCandidate(line)
		if err != nil {
			ui.Progressf("skipping %s: %v", line, err)
			continue
		}
		out = append(out, cand)
	}
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
