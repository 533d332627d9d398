// Package backend turns a Koopa program graph into target assembly.
package backend

import (
	"bytes"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a Koopa program and a configuration, and produces the
	// target assembly as a byte buffer.
	Generate(prog *koopa.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// ForMode picks the backend for a compilation mode.
func ForMode(mode config.Mode) Backend {
	if mode == config.ModeQBE {
		return NewQBEBackend()
	}
	return NewRiscVBackend()
}

func symbolName(v *koopa.Value) string { return v.Name[1:] }
