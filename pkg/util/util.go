package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/token"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// Output is where diagnostics are written.
var Output io.Writer = os.Stderr

// Fatal is called after an error diagnostic has been printed.
// Tests replace it to turn compile errors into recoverable panics.
var Fatal = func(msg string) { os.Exit(1) }

var useColor = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func SetSourceFiles(files []SourceFileRecord) { sourceFiles = files }

func SetColor(enabled bool) { useColor = enabled }

func paint(code, s string) string {
	if !useColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "<input>", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum, lineStart := tok.Line, 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	col := tok.Column - 1
	if col < 0 {
		col = 0
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col), paint("32", caret))
}

// Error prints a formatted error message and aborts compilation
func Error(tok token.Token, format string, args ...interface{}) {
	filename, line, col := findFileAndLine(tok)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(Output, "%s:%d:%d: %s %s\n", filename, line, col, paint("31", "error:"), msg)
	printErrorLine(Output, tok)
	Fatal(msg)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if cfg == nil || !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(Output, "%s:%d:%d: %s ", filename, line, col, paint("33", "warning:"))
	fmt.Fprintf(Output, format, args...)
	fmt.Fprintf(Output, " [-W%s]\n", cfg.Warnings[wt].Name)
	printErrorLine(Output, tok)
}

// Info prints a progress line when verbose output is requested.
func Info(cfg *config.Config, format string, args ...interface{}) {
	if cfg == nil || !cfg.Verbose {
		return
	}
	fmt.Fprintf(Output, "sysyc: info: "+format+"\n", args...)
}

func AlignUp(val, align int) int {
	if align == 0 {
		return val
	}
	return (val + align - 1) &^ (align - 1)
}
