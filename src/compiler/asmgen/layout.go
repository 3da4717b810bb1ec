package asmgen

import (
	"encoding/binary"

	"crucible/compiler/datasection"
)

// localHome records where one Local actually lives: either a data-section
// entry (immutable, constant-initialized) or a word offset within the
// function's stack frame.
type localHome struct {
	inData bool
	dataID datasection.DataId
	stackWordOffset int
}

// frameLayout is the result of walking every Local once at the start of a
// function's lowering, deciding its home and the frame's total size.
type frameLayout struct {
	locals map[int]localHome
	stackBytes int
}

// buildFrameLayout places every local that has a constant initializer and is
// immutable into the data section; every other local gets a word-aligned
// stack slot, in declaration order. Immutable locals with constant
// initializers are placed in the data section; all other locals are
// stack-allocated.
func buildFrameLayout(c *funcCtx) *frameLayout {
	fl := &frameLayout{locals: make(map[int]localHome)}
	wordOffset := 0
	for idx, local := range c.fn.Locals {
		if local.HasConst && !local.Mutable {
			bits := local.Type.SizeWords() * 64
			if bits == 0 {
				bits = 64
			}
			// IntValue's length must agree with IntBits/8 (see
			// asmgen.lowerConstInt): the data section sizes every entry
			// from IntBits, so a narrower buffer would desynchronize every
			// later entry's offset.
			buf := make([]byte, bits/8)
			binary.BigEndian.PutUint64(buf[len(buf)-8:], uint64(local.ConstInit))
			id := c.g.data.Insert(datasection.Entry{Kind: datasection.KindInt, IntBits: bits, IntValue: buf})
			fl.locals[idx] = localHome{inData: true, dataID: id}
			continue
		}
		fl.locals[idx] = localHome{stackWordOffset: wordOffset}
		wordOffset += local.Type.SizeWords()
	}
	fl.stackBytes = wordOffset * 8
	return fl
}
