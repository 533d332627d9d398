package config

import (
	"fmt"
	"os"
	"strings"

	"modernc.org/libqbe"
)

type Feature int

const (
	FeatDoubleFrame Feature = iota
	FeatTrampoline
	FeatQualifyLabels
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnOverflow
	WarnImplicitReturn
	WarnExtra
	WarnCount
)

type Mode int

const (
	ModeKoopa Mode = iota
	ModeRiscV
	ModeQBE
	ModeExec
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning
	Mode       Mode
	Verbose    bool
	QbeTarget  string
	TargetArch string
	WordSize   int
	StackAlign int
	// MaxSteps bounds simulated execution in -exec mode; zero means unlimited.
	MaxSteps int64
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		TargetArch: "riscv32",
		WordSize:   4,
		StackAlign: 16,
	}

	features := map[Feature]Info{
		FeatDoubleFrame:   {"double-frame", false, "Double every stack frame after 16-byte alignment, matching the reference layout."},
		FeatTrampoline:    {"trampoline", true, "Route conditional branches through a local trampoline label."},
		FeatQualifyLabels: {"qualify-labels", true, "Prefix assembly block labels with their function name."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode: {"unreachable-code", true, "Warn about statements after a return, break or continue."},
		WarnOverflow:        {"overflow", true, "Warn when an integer literal does not fit in 32 bits."},
		WarnImplicitReturn:  {"implicit-return", false, "Warn when an int function falls off its end and returns 0."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}
	return cfg
}

// SetTarget configures the QBE target used by the -qbe mode.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		c.QbeTarget = libqbe.DefaultTarget(goos, goarch)
		if c.Verbose {
			fmt.Fprintf(os.Stderr, "sysyc: info: no QBE target specified, defaulting to host target '%s'\n", c.QbeTarget)
		}
	} else {
		c.QbeTarget = qbeTarget
	}

	switch c.QbeTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
	default:
		fmt.Fprintf(os.Stderr, "sysyc: warning: unrecognized QBE target '%s', defaulting to 'rv64'\n", c.QbeTarget)
		c.QbeTarget = "rv64"
	}
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// ApplyFlag applies one -W/-F style flag such as "-Wall", "-Wno-extra" or "-Fdouble-frame".
func (c *Config) ApplyFlag(flag string) error {
	trimmed := strings.TrimPrefix(flag, "-")
	if len(trimmed) < 2 {
		return fmt.Errorf("malformed flag '%s'", flag)
	}

	isWarning := trimmed[0] == 'W'
	if !isWarning && trimmed[0] != 'F' {
		return fmt.Errorf("unknown flag '%s'", flag)
	}
	name := trimmed[1:]
	enable := !strings.HasPrefix(name, "no-")
	name = strings.TrimPrefix(name, "no-")

	if isWarning && name == "all" {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return nil
	}

	if isWarning {
		w, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(w, enable)
		return nil
	}
	f, ok := c.FeatureMap[name]
	if !ok {
		return fmt.Errorf("unknown feature '%s'", name)
	}
	c.SetFeature(f, enable)
	return nil
}

// ProcessFlags applies -Wall/-Wno-all before any specific flag so that the
// specific ones win regardless of command-line order.
func (c *Config) ProcessFlags(flags []string) error {
	for _, f := range flags {
		if f == "-Wall" || f == "-Wno-all" {
			if err := c.ApplyFlag(f); err != nil {
				return err
			}
		}
	}
	for _, f := range flags {
		if f != "-Wall" && f != "-Wno-all" {
			if err := c.ApplyFlag(f); err != nil {
				return err
			}
		}
	}
	return nil
}
