// Package cli is a small flag parser and help-page generator. Flags may be
// written -name, --name, -name=value or -name value; prefix flags such as
// -W<warning> collect every argument that starts with their prefix.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	Set(string) error
	String() string
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = b
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
	prefix       bool
}

// FlagGroup documents a family of prefix flags, like the -W warnings.
type FlagGroup struct {
	Title   string
	Prefix  string
	Entries []GroupEntry
}

type GroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
}

type FlagSet struct {
	flags      map[string]*Flag
	shorthands map[string]*Flag
	order      []*Flag
	groups     []FlagGroup
	args       []string
}

func NewFlagSet() *FlagSet {
	return &FlagSet{flags: make(map[string]*Flag), shorthands: make(map[string]*Flag)}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

// Prefix collects every argument starting with -<prefix>, whole and in
// command-line order.
func (f *FlagSet) Prefix(p *[]string, prefix, usage, expectedType string) {
	f.Var(&listValue{p}, prefix, "", usage, "", expectedType)
	f.flags[prefix].prefix = true
}

func (f *FlagSet) AddGroup(g FlagGroup) { f.groups = append(f.groups, g) }

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if _, ok := f.flags[name]; ok || name == "" {
		panic(fmt.Sprintf("flag redefined: %q", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	f.order = append(f.order, flag)
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %q", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		}
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}

		body := strings.TrimLeft(arg, "-")
		name, value, hasValue := strings.Cut(body, "=")
		flag := f.flags[name]
		if flag == nil {
			flag = f.shorthands[name]
		}
		if flag == nil {
			if pf := f.prefixFlag(body); pf != nil {
				if err := pf.Value.Set(arg); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("unknown flag: %s", arg)
		}

		if _, isBool := flag.Value.(*boolValue); isBool || hasValue {
			if err := flag.Value.Set(value); err != nil {
				return fmt.Errorf("-%s: %w", flag.Name, err)
			}
			continue
		}
		if i+1 >= len(arguments) {
			return fmt.Errorf("flag needs an argument: -%s", name)
		}
		i++
		if err := flag.Value.Set(arguments[i]); err != nil {
			return fmt.Errorf("-%s: %w", flag.Name, err)
		}
	}
	return nil
}

func (f *FlagSet) prefixFlag(body string) *Flag {
	for _, flag := range f.order {
		if flag.prefix && strings.HasPrefix(body, flag.Name) && len(body) > len(flag.Name) {
			return flag
		}
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet()}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(os.Stderr, "Usage: %s %s\nRun '%s -h' for help.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		a.WriteHelp(os.Stdout, terminalWidth())
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the help page wrapped to width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	fmt.Fprintf(w, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		fmt.Fprintln(w)
		for _, line := range wrapText(a.Description, width-2) {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}

	left := make([]string, len(a.FlagSet.order))
	col := 0
	for i, flag := range a.FlagSet.order {
		left[i] = formatFlag(flag)
		col = max(col, len(left[i]))
	}
	fmt.Fprintln(w, "\nOptions:")
	for i, flag := range a.FlagSet.order {
		writeEntry(w, left[i], flag.Usage, col, width)
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(w, "\n%s:\n", g.Title)
		entries := append([]GroupEntry(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			state := "disabled"
			if e.Enabled {
				state = "enabled"
			}
			writeEntry(w, "-"+g.Prefix+e.Name, fmt.Sprintf("%s (%s)", e.Usage, state), col, width)
		}
	}
}

func formatFlag(flag *Flag) string {
	s := "-" + flag.Name
	if flag.prefix {
		s += "<" + flag.ExpectedType + ">"
	} else if flag.ExpectedType != "" {
		s += " <" + flag.ExpectedType + ">"
	}
	if flag.Shorthand != "" {
		s = "-" + flag.Shorthand + ", " + s
	}
	return s
}

func writeEntry(w io.Writer, left, usage string, col, width int) {
	indent := 2 + col + 2
	lines := wrapText(usage, width-indent)
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(w, "  %-*s  %s\n", col, left, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", indent), line)
	}
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

func wrapText(text string, width int) []string {
	if width < 20 {
		width = 20
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
