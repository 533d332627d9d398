//go:build windows

package backend

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
	"github.com/xplshn/sysyc/pkg/util"
)

// Generate shells out to the qbe executable, since libqbe does not build on
// windows.
func (b *qbeBackend) Generate(prog *koopa.Program, cfg *config.Config) (*bytes.Buffer, error) {
	qbe, err := exec.LookPath("qbe")
	if err != nil {
		return nil, fmt.Errorf("qbe: no qbe executable in PATH: %w", err)
	}
	il, err := b.GenerateIL(prog, cfg)
	if err != nil {
		return nil, err
	}

	in, err := os.CreateTemp("", "sysyc-*.ssa")
	if err != nil {
		return nil, fmt.Errorf("qbe: %w", err)
	}
	defer os.Remove(in.Name())
	_, err = in.WriteString(il)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("qbe: writing IL: %w", err)
	}

	util.Info(cfg, "compiling QBE IL for %s with %s", cfg.QbeTarget, qbe)
	outName := in.Name() + ".s"
	defer os.Remove(outName)
	if out, err := exec.Command(qbe, "-o", outName, "-t", cfg.QbeTarget, in.Name()).CombinedOutput(); err != nil {
		return nil, compileError(il, fmt.Errorf("%w: %s", err, bytes.TrimSpace(out)))
	}

	asm, err := os.ReadFile(outName)
	if err != nil {
		return nil, fmt.Errorf("qbe: reading output: %w", err)
	}
	return bytes.NewBuffer(asm), nil
}
