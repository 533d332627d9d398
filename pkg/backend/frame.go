package backend

import (
	"github.com/xplshn/sysyc/pkg/config"
	"github.com/xplshn/sysyc/pkg/koopa"
	"github.com/xplshn/sysyc/pkg/util"
)

// Frame is the stack layout of one function activation.
//
//	sp+0                  the function's own stack-passed parameters (9th on)
//	...                   instruction slots, assigned on first use
//	sp+Size-4             saved ra, when the function calls
type Frame struct {
	Size    int
	HasCall bool

	offsets map[*koopa.Value]int
	next    int
}

// slotSize is the stack space an instruction result needs. An alloc reserves
// room for the allocated object itself.
func slotSize(v *koopa.Value) int {
	if v.Kind == koopa.Alloc {
		return v.Ty.Elem.Size()
	}
	return v.Ty.Size()
}

func overflowParams(fn *koopa.Function) int {
	if n := len(fn.Params); n > 8 {
		return n - 8
	}
	return 0
}

// FrameSize computes the aligned frame size of fn and whether it calls.
func FrameSize(fn *koopa.Function, cfg *config.Config) (size int, hasCall bool) {
	maxOverflow := 0
	for _, b := range fn.Blocks {
		for _, inst := range b.Insts {
			if inst.Kind == koopa.Call {
				hasCall = true
				maxOverflow = max(maxOverflow, len(inst.Args)-8)
			}
			size += slotSize(inst)
		}
	}
	size += maxOverflow * 4
	size += overflowParams(fn) * 4
	if hasCall {
		size += 4
	}
	size = util.AlignUp(size, cfg.StackAlign)
	if cfg.IsFeatureEnabled(config.FeatDoubleFrame) {
		size *= 2
	}
	return size, hasCall
}

func NewFrame(fn *koopa.Function, cfg *config.Config) *Frame {
	size, hasCall := FrameSize(fn, cfg)
	return &Frame{
		Size:    size,
		HasCall: hasCall,
		offsets: make(map[*koopa.Value]int),
		next:    overflowParams(fn) * 4,
	}
}

// Offset returns the sp-relative slot of an instruction result, assigning
// one on first use. Values that occupy no space have no slot.
func (f *Frame) Offset(v *koopa.Value) (int, bool) {
	if off, ok := f.offsets[v]; ok {
		return off, true
	}
	if !v.IsInst() {
		return 0, false
	}
	size := slotSize(v)
	if size == 0 {
		return 0, false
	}
	f.offsets[v] = f.next
	f.next += size
	return f.offsets[v], true
}
