// Package finalize turns the allocator's output into the bytecode artifact:
// it resolves labels to absolute word offsets, expands the PushAll/PopAll
// and data-section placeholders into real instructions, encodes every
// instruction into a fixed-width word, and emits the accompanying source
// map. vasm owns the ISA's instruction layout; this package is the only
// other place that needs to agree with it on encoding.
package finalize

import (
	"encoding/binary"
	"fmt"

	"crucible/compiler/allocatedasm"
	"crucible/compiler/asmtypes"
	"crucible/compiler/datasection"
	"crucible/compiler/source"
	"crucible/compiler/vasm"
)

// wordBytes is the fixed width of one encoded instruction word: 1 opcode
// byte, 3 register-operand bytes (kind+id packed per operand), 1 immediate-
// kind tag byte, and an 8-byte big-endian immediate/offset payload, rounded
// up to the data section's 8-byte word alignment.
const wordBytes = 16

// preambleWords is the fixed size, in words, of the program preamble:
// word 0 is the raw, patched data-section byte offset; words 1-2 are the
// two real instructions that load it into the data-section register.
const preambleWords = 3

// SourceMapEntry ties one emitted instruction's byte offset back to the
// source span that produced it.
type SourceMapEntry struct {
	ByteOffset int
	Span source.Span
}

// Result is the complete finalized artifact: a contiguous
// byte string (code, then data section) plus the side-car source map.
type Result struct {
	Bytecode []byte
	SourceMap []SourceMapEntry
	DataSectionOffset int
}

// Finalize lowers every function's allocated op stream plus the shared data
// section into one Result. At most one function may have IsEntry set (more
// than one is an internal error); when present it is emitted first.
func Finalize(functions []*allocatedasm.Function, data *datasection.Section) (*Result, error) {
	ordered, err := orderEntryFirst(functions)
	if err != nil {
		return nil, err
	}

	var words []vasm.Op
	for _, fn := range ordered {
		words = append(words, expandPushPop(fn.Ops)...)
	}

	labelOffset := resolveLabels(words)

	layout := data.Layout()
	dataOffset := (preambleWords + len(words)) * wordBytes

	buf := make([]byte, 0, dataOffset+layout.Size)
	buf = append(buf, encodePreamble(dataOffset)...)

	sourceMap := make([]SourceMapEntry, 0, len(words))
	for i, op := range words {
		enc, err := encodeOp(op, labelOffset, layout)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
		sourceMap = append(sourceMap, SourceMapEntry{
			ByteOffset: (preambleWords + i) * wordBytes,
			Span: op.Span,
		})
	}

	buf = append(buf, encodeDataSection(data)...)

	return &Result{Bytecode: buf, SourceMap: sourceMap, DataSectionOffset: dataOffset}, nil
}

// orderEntryFirst moves the single IsEntry function to the front, keeping
// every other function in its given (declaration) order.
func orderEntryFirst(functions []*allocatedasm.Function) ([]*allocatedasm.Function, error) {
	var entry *allocatedasm.Function
	rest := make([]*allocatedasm.Function, 0, len(functions))
	for _, fn := range functions {
		if fn.IsEntry {
			if entry != nil {
				return nil, fmt.Errorf("internal compiler error: more than one entry-point function reached finalize (%q and %q)", entry.Name, fn.Name)
			}
			entry = fn
			continue
		}
		rest = append(rest, fn)
	}
	if entry == nil {
		return rest, nil
	}
	return append([]*allocatedasm.Function{entry}, rest...), nil
}

// expandPushPop replaces every PushAll/PopAll synthetic op with the
// equivalent store/load sequence over the physical registers register
// allocation resolved into its SavedRegisters field, so the prologue and
// epilogue save and restore exactly the registers actually used. Any label
// bound to the synthetic op moves to the first op of its expansion so jumps
// that targeted it still resolve correctly.
func expandPushPop(ops []vasm.Op) []vasm.Op {
	out := make([]vasm.Op, 0, len(ops))
	var pendingLabels []asmtypes.Label

	flush := func(op vasm.Op) vasm.Op {
		for _, l := range pendingLabels {
			op = op.WithLabel(l)
		}
		pendingLabels = nil
		return op
	}

	for _, op := range ops {
		var expanded []vasm.Op
		switch op.Code {
		case vasm.PushAll:
			expanded = expandPush(op)
		case vasm.PopAll:
			expanded = expandPop(op)
		default:
			expanded = []vasm.Op{op}
		}
		if len(expanded) == 0 {
			// A function with no registers to save: the PushAll/PopAll
			// itself disappears, but any label bound to it (the function's
			// own entry label, always bound to the prologue's PushAll)
			// must still resolve to whatever comes next.
			pendingLabels = append(pendingLabels, op.Labels...)
			continue
		}
		expanded[0] = flush(expanded[0])
		out = append(out, expanded...)
	}
	if len(pendingLabels) > 0 {
		// Nothing followed the dropped op in this function's own stream:
		// a trailing Undefined placeholder carries these labels so they
		// still resolve to a valid offset.
		out = append(out, vasm.NewUndefined())
		out[len(out)-1] = flush(out[len(out)-1])
	}
	return out
}

func expandPush(op vasm.Op) []vasm.Op {
	n := len(op.SavedRegisters)
	if n == 0 {
		return nil
	}
	sp := asmtypes.ReservedReg(asmtypes.StackPointer)
	seq := make([]vasm.Op, 0, n+1)
	seq = append(seq, vasm.NewSubi(sp, sp, asmtypes.MustImmediate12(int64(n*8), "saved-register frame size overflowed 12 bits")))
	for i, r := range op.SavedRegisters {
		seq = append(seq, vasm.NewStoreWord(sp, r, asmtypes.MustImmediate12(int64(i), "saved-register slot index overflowed 12 bits")))
	}
	return attachSpan(attachLabels(seq, op), op)
}

func expandPop(op vasm.Op) []vasm.Op {
	n := len(op.SavedRegisters)
	if n == 0 {
		return nil
	}
	sp := asmtypes.ReservedReg(asmtypes.StackPointer)
	seq := make([]vasm.Op, 0, n+1)
	for i, r := range op.SavedRegisters {
		seq = append(seq, vasm.NewLoadWordImm(r, sp, asmtypes.MustImmediate12(int64(i), "saved-register slot index overflowed 12 bits")))
	}
	seq = append(seq, vasm.NewAddi(sp, sp, asmtypes.MustImmediate12(int64(n*8), "saved-register frame size overflowed 12 bits")))
	return attachSpan(attachLabels(seq, op), op)
}

func attachLabels(seq []vasm.Op, original vasm.Op) []vasm.Op {
	if len(seq) == 0 || len(original.Labels) == 0 {
		return seq
	}
	for _, l := range original.Labels {
		seq[0] = seq[0].WithLabel(l)
	}
	return seq
}

func attachSpan(seq []vasm.Op, original vasm.Op) []vasm.Op {
	for i := range seq {
		seq[i].Span = original.Span
	}
	return seq
}

// resolveLabels walks the final, fully-expanded op stream once and records
// the absolute word index (counted from the start of the bytecode, so the
// fixed preamble's words are included) at which every bound label resolves.
func resolveLabels(words []vasm.Op) map[asmtypes.Label]int {
	offsets := make(map[asmtypes.Label]int)
	for i, op := range words {
		for _, l := range op.Labels {
			offsets[l] = preambleWords + i
		}
	}
	return offsets
}

// encodePreamble builds the fixed 3-word program header: a raw word
// carrying the already-final data-section byte offset, followed by the two
// real instructions that compute instruction-start + data-section-offset
// into the data-section register.
// The offset word sits at word 0, so a LoadWordImm off InstructionStart at
// offset 0 reads it back.
func encodePreamble(dataOffset int) []byte {
	buf := make([]byte, 0, preambleWords*wordBytes)

	raw := make([]byte, wordBytes)
	binary.BigEndian.PutUint64(raw[wordBytes-8:], uint64(dataOffset))
	buf = append(buf, raw...)

	tmp := asmtypes.Virtual("$ds_offset")
	instrStart := asmtypes.ReservedReg(asmtypes.InstructionStart)
	loadOffset := vasm.NewLoadWordImm(tmp, instrStart, asmtypes.MustImmediate12(0, "preamble offset word is always at word 0"))
	computeBase := vasm.NewAdd(asmtypes.ReservedReg(asmtypes.DataSection), instrStart, tmp)

	enc1, _ := encodeOp(physicalizeVirtual(loadOffset), nil, datasection.Layout{})
	enc2, _ := encodeOp(physicalizeVirtual(computeBase), nil, datasection.Layout{})
	buf = append(buf, enc1...)
	buf = append(buf, enc2...)
	return buf
}

// physicalizeVirtual maps the one scratch virtual register the preamble
// uses onto physical register 0: the preamble runs before any function
// prologue has pushed its own register set, so R0 is always free here.
func physicalizeVirtual(op vasm.Op) vasm.Op {
	if op.HasDst && op.Dst.Kind == asmtypes.KindVirtual {
		op.Dst = asmtypes.Physical(0)
	}
	for i := 0; i < op.NumSrc; i++ {
		if op.Src[i].Kind == asmtypes.KindVirtual {
			op.Src[i] = asmtypes.Physical(0)
		}
	}
	return op
}

// encodeOp packs one allocated op into its fixed-width word. labelOffset
// resolves Target references for control-flow/address ops; layout resolves
// Data references to their final byte offset within the data section.
func encodeOp(op vasm.Op, labelOffset map[asmtypes.Label]int, layout datasection.Layout) ([]byte, error) {
	buf := make([]byte, wordBytes)
	buf[0] = byte(op.Code)
	buf[1] = encodeReg(op.Dst, op.HasDst)
	buf[2] = encodeReg(op.Src[0], op.NumSrc > 0)
	buf[3] = encodeReg(op.Src[1], op.NumSrc > 1)
	buf[4] = byte(op.ImmKind)

	payload := uint64(0)
	switch {
	case op.HasTarget:
		idx, ok := labelOffset[op.Target]
		if !ok {
			return nil, fmt.Errorf("internal compiler error: unresolved label %s in op %s", op.Target, op)
		}
		payload = uint64(idx)
	case op.HasData:
		off, ok := layout.OffsetOf(op.Data)
		if !ok {
			return nil, fmt.Errorf("internal compiler error: unresolved data-section id %s in op %s", op.Data, op)
		}
		payload = uint64(off)
	case op.ImmKind != vasm.ImmNone:
		payload = uint64(op.ImmValue)
	}
	binary.BigEndian.PutUint64(buf[wordBytes-8:], payload)
	return buf, nil
}

// encodeReg packs a register operand's kind (reserved=0, physical=1) and id
// into a single byte: the top bit is the kind, the low 7 bits the id. Both
// the VM-reserved set and the 48-register physical pool fit comfortably.
func encodeReg(r asmtypes.Register, present bool) byte {
	if !present {
		return 0
	}
	switch r.Kind {
	case asmtypes.KindReserved:
		return byte(r.Reserved) & 0x7f
	case asmtypes.KindPhysical:
		return 0x80 | (byte(r.Physical) & 0x7f)
	default:
		return 0
	}
}

// encodeDataSection serializes every data-section entry in insertion order,
// immediately following the code section.
func encodeDataSection(data *datasection.Section) []byte {
	var buf []byte
	for _, e := range data.Entries() {
		buf = append(buf, encodeEntry(e)...)
	}
	return buf
}

func encodeEntry(e datasection.Entry) []byte {
	switch e.Kind {
	case datasection.KindInt:
		return padToWord(e.IntValue)
	case datasection.KindBytes:
		return padToWord(e.Bytes)
	case datasection.KindAggregate:
		var buf []byte
		for _, f := range e.Fields {
			buf = append(buf, encodeEntry(f)...)
		}
		return buf
	default:
		return nil
	}
}

func padToWord(b []byte) []byte {
	pad := (8 - len(b)%8) % 8
	if pad == 0 {
		return append([]byte{}, b...)
	}
	out := make([]byte, len(b)+pad)
	copy(out, b)
	return out
}
