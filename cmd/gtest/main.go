// gtest runs the SysY expectation suite described by a YAML manifest against
// a built sysyc binary.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/ncruces/go-strftime"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"
)

// Case is one manifest entry. A case either expects a successful run
// (Stdout, Exit) or a compile error whose stderr contains Error.
type Case struct {
	Name   string   `yaml:"name"`
	File   string   `yaml:"file"`
	Args   []string `yaml:"args,omitempty"`
	Input  string   `yaml:"input,omitempty"`
	Stdout string   `yaml:"stdout,omitempty"`
	Exit   int      `yaml:"exit,omitempty"`
	Error  string   `yaml:"error,omitempty"`
}

type Manifest struct {
	Compiler string   `yaml:"compiler,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	Cases    []Case   `yaml:"cases"`
}

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type Result struct {
	Name    string    `json:"name"`
	Key     string    `json:"key"`
	Status  string    `json:"status"` // PASS, FAIL, ERROR
	Message string    `json:"message,omitempty"`
	Diff    string    `json:"diff,omitempty"`
	Run     Execution `json:"run"`
	Cached  bool      `json:"-"`
}

type Report struct {
	Generated string             `json:"generated"`
	Compiler  string             `json:"compiler"`
	Results   map[string]*Result `json:"results"`
}

var (
	manifestPath = flag.String("manifest", "tests/manifest.yaml", "Path to the YAML test manifest.")
	compiler     = flag.String("compiler", "", "Path to the sysyc binary (overrides the manifest).")
	outputJSON   = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout      = flag.Duration("timeout", 10*time.Second, "Timeout for each case.")
	jobs         = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose      = flag.Bool("v", false, "Print every case, not only failures.")
	useCache     = flag.Bool("cached", false, "Reuse results from the previous report when source, input and compiler are unchanged.")
	watch        = flag.Bool("watch", false, "Rerun the suite whenever a test file or the compiler changes.")
	filter       = flag.String("run", "", "Only run cases whose name contains this substring.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := runSuite(ctx)
	if !*watch {
		if failed {
			os.Exit(1)
		}
		return
	}
	if err := watchAndRerun(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%s[ERROR]%s %v", cRed, cNone, err)
	}
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if *compiler != "" {
		m.Compiler = *compiler
	}
	if m.Compiler == "" {
		m.Compiler = "./sysyc"
	}
	base := filepath.Dir(path)
	for i := range m.Cases {
		c := &m.Cases[i]
		if c.Name == "" {
			c.Name = strings.TrimSuffix(filepath.Base(c.File), filepath.Ext(c.File))
		}
		if !filepath.IsAbs(c.File) {
			c.File = filepath.Join(base, c.File)
		}
	}
	return &m, nil
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// cacheKey identifies a case by everything that can change its outcome.
func cacheKey(c Case, args []string, compilerHash uint64) (string, error) {
	srcHash, err := hashFile(c.File)
	if err != nil {
		return "", err
	}
	h := xxhash.New()
	fmt.Fprintf(h, "%x\x00%x\x00%s\x00%s\x00%s", srcHash, compilerHash, strings.Join(args, " "), strings.Join(c.Args, " "), c.Input)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func runSuite(ctx context.Context) (failed bool) {
	m, err := loadManifest(*manifestPath)
	if err != nil {
		log.Printf("%s[ERROR]%s %v", cRed, cNone, err)
		return true
	}
	compilerHash, err := hashFile(m.Compiler)
	if err != nil {
		log.Printf("%s[ERROR]%s compiler %s: %v", cRed, cNone, m.Compiler, err)
		return true
	}

	var cases []Case
	for _, c := range m.Cases {
		if strings.Contains(c.Name, *filter) {
			cases = append(cases, c)
		}
	}
	previous := loadPreviousReport()

	start := time.Now()
	bar := progressbar.NewOptions(len(cases),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("testing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	results := make([]*Result, len(cases))
	sem := make(chan struct{}, max(*jobs, 1))
	var wg sync.WaitGroup
	for i, c := range cases {
		wg.Add(1)
		go func(i int, c Case) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = runCase(ctx, m, c, compilerHash, previous)
			bar.Add(1)
		}(i, c)
	}
	wg.Wait()
	bar.Finish()

	printSummary(results, time.Since(start))
	writeReport(m.Compiler, results)
	for _, r := range results {
		if r.Status != "PASS" {
			return true
		}
	}
	return false
}

func runCase(ctx context.Context, m *Manifest, c Case, compilerHash uint64, previous map[string]*Result) *Result {
	key, err := cacheKey(c, m.Args, compilerHash)
	if err != nil {
		return &Result{Name: c.Name, Status: "ERROR", Message: err.Error()}
	}
	if prev, ok := previous[c.Name]; *useCache && ok && prev.Key == key {
		cached := *prev
		cached.Cached = true
		return &cached
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	args := append(append([]string{}, m.Args...), c.Args...)
	if !hasMode(args) {
		if c.Error != "" {
			args = append(args, "-koopa", "-o", os.DevNull)
		} else {
			args = append(args, "-exec")
		}
	}
	args = append(args, "-no-color", c.File)

	run := executeCommand(ctx, m.Compiler, c.Input, args...)
	res := &Result{Name: c.Name, Key: key, Run: run}
	check(c, res)
	return res
}

func hasMode(args []string) bool {
	for _, a := range args {
		switch a {
		case "-koopa", "-riscv", "-qbe", "-exec":
			return true
		}
	}
	return false
}

func check(c Case, res *Result) {
	run := res.Run
	stderr := ansi.Strip(run.Stderr)
	switch {
	case run.TimedOut:
		res.Status, res.Message = "FAIL", fmt.Sprintf("timed out after %s", *timeout)
	case c.Error != "":
		if run.ExitCode == 0 {
			res.Status, res.Message = "FAIL", "expected a compile error, compilation succeeded"
		} else if !strings.Contains(stderr, c.Error) {
			res.Status, res.Message = "FAIL", "compile error does not match"
			res.Diff = cmp.Diff(c.Error, strings.TrimSpace(stderr))
		} else {
			res.Status, res.Message = "PASS", "failed to compile as expected"
		}
	case run.ExitCode != c.Exit&0xff:
		res.Status, res.Message = "FAIL", fmt.Sprintf("exit code %d, want %d", run.ExitCode, c.Exit&0xff)
		if stderr != "" {
			res.Diff = stderr
		}
	case run.Stdout != c.Stdout:
		res.Status, res.Message = "FAIL", "stdout differs"
		res.Diff = cmp.Diff(c.Stdout, run.Stdout)
	default:
		res.Status, res.Message = "PASS", fmt.Sprintf("%s of output", humanize.Bytes(uint64(len(run.Stdout))))
	}
}

func executeCommand(ctx context.Context, command string, stdinData string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdinData != "" {
		cmd.Stdin = strings.NewReader(stdinData)
	}

	err := cmd.Run()
	result := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(startTime)}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case err != nil:
		result.ExitCode = -2
		result.Stderr += "\nExecution error: " + err.Error()
	}
	return result
}

func printSummary(results []*Result, elapsed time.Duration) {
	var passed, failed, errored, cached int
	var caseTime time.Duration
	for _, r := range results {
		caseTime += r.Run.Duration
		if r.Cached {
			cached++
		}
		switch r.Status {
		case "PASS":
			passed++
			if *verbose {
				fmt.Printf("[%sPASS%s] %s%s%s: %s\n", cGreen, cNone, cCyan, r.Name, cNone, r.Message)
			}
		case "FAIL":
			failed++
			fmt.Printf("[%sFAIL%s] %s%s%s: %s\n", cRed, cNone, cCyan, r.Name, cNone, r.Message)
			if r.Diff != "" {
				fmt.Println(formatDiff(r.Diff))
			}
		default:
			errored++
			fmt.Printf("[%sERROR%s] %s%s%s: %s\n", cYellow, cNone, cCyan, r.Name, cNone, r.Message)
		}
	}
	fmt.Printf("%s%d passed%s, %d failed, %d errors (%d cached) in %s, %s of case time\n",
		cBold, passed, cNone, failed, errored, cached,
		elapsed.Round(time.Millisecond), caseTime.Round(time.Millisecond))
}

func formatDiff(diff string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString("      " + cGreen + line + cNone + "\n")
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString("      " + cRed + line + cNone + "\n")
		default:
			sb.WriteString("      " + line + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func loadPreviousReport() map[string]*Result {
	data, err := os.ReadFile(*outputJSON)
	if err != nil {
		return nil
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil
	}
	return r.Results
}

func writeReport(compilerPath string, results []*Result) {
	report := Report{
		Generated: strftime.Format("%Y-%m-%d %H:%M:%S", time.Now()),
		Compiler:  compilerPath,
		Results:   make(map[string]*Result, len(results)),
	}
	for _, r := range results {
		report.Results[r.Name] = r
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v", cRed, cNone, err)
		return
	}
	if err := os.WriteFile(*outputJSON, data, 0o644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v", cRed, cNone, *outputJSON, err)
		return
	}
	if *verbose {
		fmt.Printf("Report (%s) saved to %s\n", humanize.Bytes(uint64(len(data))), *outputJSON)
	}
}

// watchAndRerun reruns the suite when the manifest, a case file or the
// compiler binary changes. Bursts of events are coalesced.
func watchAndRerun(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	m, err := loadManifest(*manifestPath)
	if err != nil {
		return err
	}
	dirs := map[string]bool{filepath.Dir(*manifestPath): true, filepath.Dir(m.Compiler): true}
	for _, c := range m.Cases {
		dirs[filepath.Dir(c.File)] = true
	}
	var sorted []string
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)
	for _, d := range sorted {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	fmt.Printf("%s[WATCH]%s watching %d director(ies); press Ctrl+C to stop\n", cYellow, cNone, len(sorted))

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(200 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("%s[ERROR]%s watcher: %v", cRed, cNone, err)
		case <-debounce:
			debounce = nil
			fmt.Printf("\n%s[WATCH]%s change detected, rerunning\n", cYellow, cNone)
			runSuite(ctx)
		}
	}
}
