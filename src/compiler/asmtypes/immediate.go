package asmtypes

import (
	"fmt"

	"crucible/compiler/source"
)

// OverflowError is raised when a source-spanned value does not fit the
// requested immediate width: constructing one from a source-spanned value
// must fail with immediate-too-large if it exceeds the bound.
type OverflowError struct {
	Span source.Span
	Width int
	Value int64
	MaxValue int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("immediate-too-large: value %d does not fit in %d bits (max %d) at %s",
		e.Value, e.Width, e.MaxValue, e.Span)
}

func maxForWidth(width int) int64 {
	return (int64(1) << uint(width)) - 1
}

// immediate is the shared representation behind Immediate6/12/18/24: a
// non-negative integer proven (by construction) to fit its bit width.
type immediate struct {
	width int
	value int64
}

func newSpanned(width int, value int64, span source.Span) (immediate, error) {
	if value < 0 || value > maxForWidth(width) {
		return immediate{}, &OverflowError{Span: span, Width: width, Value: value, MaxValue: maxForWidth(width)}
	}
	return immediate{width: width, value: value}, nil
}

// newProven constructs an immediate without a span. Callers must have
// already proven the bound themselves; msg accompanies any internal-compiler
// -error raised if that proof was wrong.
func newProven(width int, value int64, msg string) immediate {
	if value < 0 || value > maxForWidth(width) {
		panic(fmt.Sprintf("internal compiler error: %s (value %d does not fit %d bits)", msg, value, width))
	}
	return immediate{width: width, value: value}
}

func (i immediate) Value() int64 { return i.value }
func (i immediate) Width() int { return i.width }
func (i immediate) String() string {
	return fmt.Sprintf("#%d", i.value)
}

// Immediate6 is a non-negative integer fitting 6 bits.
type Immediate6 struct{ immediate }

func NewImmediate6(value int64, span source.Span) (Immediate6, error) {
	im, err := newSpanned(6, value, span)
	return Immediate6{im}, err
}

func MustImmediate6(value int64, msg string) Immediate6 {
	return Immediate6{newProven(6, value, msg)}
}

// Immediate12 is a non-negative integer fitting 12 bits.
type Immediate12 struct{ immediate }

func NewImmediate12(value int64, span source.Span) (Immediate12, error) {
	im, err := newSpanned(12, value, span)
	return Immediate12{im}, err
}

func MustImmediate12(value int64, msg string) Immediate12 {
	return Immediate12{newProven(12, value, msg)}
}

// Immediate18 is a non-negative integer fitting 18 bits.
type Immediate18 struct{ immediate }

func NewImmediate18(value int64, span source.Span) (Immediate18, error) {
	im, err := newSpanned(18, value, span)
	return Immediate18{im}, err
}

func MustImmediate18(value int64, msg string) Immediate18 {
	return Immediate18{newProven(18, value, msg)}
}

// Immediate24 is a non-negative integer fitting 24 bits.
type Immediate24 struct{ immediate }

func NewImmediate24(value int64, span source.Span) (Immediate24, error) {
	im, err := newSpanned(24, value, span)
	return Immediate24{im}, err
}

func MustImmediate24(value int64, msg string) Immediate24 {
	return Immediate24{newProven(24, value, msg)}
}
