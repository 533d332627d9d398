package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"strconv"

	"github.com/goforj/godump"
	"github.com/xplshn/sysyc/pkg/cli"
	"github.com/xplshn/sysyc/pkg/compiler"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/token"
	"github.com/xplshn/sysyc/pkg/util"
)

func main() {
	app := cli.NewApp("sysyc")
	app.Synopsis = "-koopa|-riscv|-qbe|-exec [options] <input.sy>"
	app.Description = "A SysY compiler. Lowers source to Koopa IR, then to RV32IM assembly, or to native assembly through QBE. -exec runs the RISC-V output in the built-in simulator."

	var (
		outFile  string
		target   string
		maxSteps string
		koopa    bool
		riscv    bool
		qbe      bool
		exec     bool
		verbose  bool
		dumpAST  bool
		noColor  bool
		flags    []string
	)

	cfg := config.NewConfig()
	fs := app.FlagSet
	fs.Bool(&koopa, "koopa", "", false, "Emit Koopa IR text.")
	fs.Bool(&riscv, "riscv", "", false, "Emit RV32IM assembly.")
	fs.Bool(&qbe, "qbe", "", false, "Emit native assembly through the QBE backend.")
	fs.Bool(&exec, "exec", "", false, "Compile to RISC-V and run it in the simulator; exits with main's result.")
	fs.String(&outFile, "output", "o", "-", "Place the output into <file> ('-' for stdout).", "file")
	fs.String(&target, "target", "t", "", "QBE target (amd64_sysv, amd64_apple, arm64, arm64_apple, rv64).", "target")
	fs.String(&maxSteps, "max-steps", "", "0", "Abort -exec runs after <n> instructions (0 for no limit).", "n")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage.")
	fs.Bool(&dumpAST, "dump-ast", "", false, "Dump the syntax tree and exit.")
	fs.Bool(&noColor, "no-color", "", false, "Disable colored diagnostics.")
	fs.Prefix(&flags, "W", "Enable or disable (-Wno-<name>) a warning; -Wall toggles all.", "warning")
	fs.Prefix(&flags, "F", "Enable or disable (-Fno-<name>) a feature.", "feature")
	fs.AddGroup(groupFor("Warnings", "W", cfg.Warnings))
	fs.AddGroup(groupFor("Features", "F", cfg.Features))

	app.Action = func(args []string) error {
		if noColor {
			util.SetColor(false)
		}
		cfg.Verbose = verbose
		if err := cfg.ProcessFlags(flags); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		steps, err := strconv.ParseInt(maxSteps, 10, 64)
		if err != nil || steps < 0 {
			util.Error(token.Token{FileIndex: -1}, "invalid -max-steps value '%s'", maxSteps)
		}
		cfg.MaxSteps = steps

		modes := 0
		for mode, set := range map[config.Mode]bool{
			config.ModeKoopa: koopa, config.ModeRiscV: riscv, config.ModeQBE: qbe, config.ModeExec: exec,
		} {
			if set {
				cfg.Mode = mode
				modes++
			}
		}
		if modes > 1 {
			util.Error(token.Token{FileIndex: -1}, "-koopa, -riscv, -qbe and -exec are mutually exclusive")
		}
		if modes == 0 && !dumpAST {
			util.Error(token.Token{FileIndex: -1}, "no mode given; use -koopa, -riscv, -qbe or -exec")
		}
		if len(args) != 1 {
			util.Error(token.Token{FileIndex: -1}, "expected exactly one input file, got %d", len(args))
		}
		if cfg.Mode == config.ModeQBE {
			cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", args[0], err)
		}
		unit := compiler.Parse(args[0], []rune(string(content)), cfg)
		if dumpAST {
			godump.Dump(unit.Tree)
			return nil
		}

		if err := unit.Lower(cfg); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		if cfg.Mode == config.ModeKoopa {
			writeOutput(outFile, unit.Koopa)
			return nil
		}

		if cfg.Mode == config.ModeExec {
			os.Exit(execute(unit, cfg))
		}
		asm, err := unit.Assemble(cfg)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "backend code generation failed: %v", err)
		}
		writeOutput(outFile, asm)
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func execute(unit *compiler.Unit, cfg *config.Config) int {
	cfg.Mode = config.ModeRiscV
	asm, err := unit.Assemble(cfg)
	if err != nil {
		util.Error(token.Token{FileIndex: -1}, "backend code generation failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ret, err := compiler.Run(ctx, asm, os.Stdin, os.Stdout, os.Stderr, cfg)
	if err != nil {
		util.Error(token.Token{FileIndex: -1}, "execution failed: %v", err)
	}
	return int(ret) & 0xff
}

func writeOutput(path, text string) {
	if path == "-" {
		os.Stdout.WriteString(text)
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		util.Error(token.Token{FileIndex: -1}, "could not write '%s': %v", path, err)
	}
}

func groupFor[K comparable](title, prefix string, table map[K]config.Info) cli.FlagGroup {
	g := cli.FlagGroup{Title: title, Prefix: prefix}
	for _, info := range table {
		g.Entries = append(g.Entries, cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	return g
}
