//go:build !windows

package backend

import (
	"bytes"
	"strings"

	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
	"github.com/xplshn/sysyc/pkg/util"
	"modernc.org/libqbe"
)

func (b *qbeBackend) Generate(prog *koopa.Program, cfg *config.Config) (*bytes.Buffer, error) {
	il, err := b.GenerateIL(prog, cfg)
	if err != nil {
		return nil, err
	}

	util.Info(cfg, "compiling QBE IL for %s with libqbe", cfg.QbeTarget)
	var asm bytes.Buffer
	if err := libqbe.Main(cfg.QbeTarget, "input.ssa", strings.NewReader(il), &asm, nil); err != nil {
		return nil, compileError(il, err)
	}
	return &asm, nil
}
