package rvsim

import (
	"errors"
	"fmt"
	"io"
	"time"
)

type runtimeFunc func(m *Machine) error

// runtimeLibrary is the SysY runtime, taking arguments in a0/a1 and
// returning in a0 like any other callee.
var runtimeLibrary = map[string]runtimeFunc{
	"getint": func(m *Machine) error {
		var n int32
		if _, err := fmt.Fscan(m.in, &n); err != nil && !errors.Is(err, io.EOF) {
			return m.fault("getint: %v", err)
		}
		m.regs[10] = n
		return nil
	},
	"getch": func(m *Machine) error {
		c, err := m.in.ReadByte()
		if err != nil {
			m.regs[10] = -1
			return nil
		}
		m.regs[10] = int32(c)
		return nil
	},
	"getarray": func(m *Machine) error {
		base := uint32(m.regs[10])
		var n int32
		if _, err := fmt.Fscan(m.in, &n); err != nil && !errors.Is(err, io.EOF) {
			return m.fault("getarray: %v", err)
		}
		for i := int32(0); i < n; i++ {
			var v int32
			if _, err := fmt.Fscan(m.in, &v); err != nil && !errors.Is(err, io.EOF) {
				return m.fault("getarray: %v", err)
			}
			if err := m.StoreWord(base+uint32(i)*4, v); err != nil {
				return err
			}
		}
		m.regs[10] = n
		return nil
	},
	"putint": func(m *Machine) error {
		fmt.Fprintf(m.out, "%d", m.regs[10])
		return nil
	},
	"putch": func(m *Machine) error {
		return m.out.WriteByte(byte(m.regs[10]))
	},
	"putarray": func(m *Machine) error {
		n, base := m.regs[10], uint32(m.regs[11])
		fmt.Fprintf(m.out, "%d:", n)
		for i := int32(0); i < n; i++ {
			v, err := m.LoadWord(base + uint32(i)*4)
			if err != nil {
				return err
			}
			fmt.Fprintf(m.out, " %d", v)
		}
		return m.out.WriteByte('\n')
	},
	"starttime": func(m *Machine) error {
		m.timerStart = time.Now()
		return nil
	},
	"stoptime": func(m *Machine) error {
		if m.timerStart.IsZero() {
			return nil
		}
		d := time.Since(m.timerStart)
		m.Timers = append(m.Timers, d)
		m.timerStart = time.Time{}
		if m.Stderr != nil {
			us := d.Microseconds()
			fmt.Fprintf(m.Stderr, "Timer#%03d: %dH-%dM-%dS-%dus\n", len(m.Timers),
				us/3600e6, us/60e6%60, us/1e6%60, us%1e6)
		}
		return nil
	},
}

func (m *Machine) callRuntime(name string) error {
	return runtimeLibrary[name](m)
}
