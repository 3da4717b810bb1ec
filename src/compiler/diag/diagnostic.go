// Package diag is the accumulating diagnostic collector shared by every
// pipeline stage: parse/type errors arrive pre-built (out of scope here),
// IR-gen and the control-flow analyzer build semantic and overflow
// diagnostics, and the allocator/finalizer build internal-compiler-error
// diagnostics.
package diag

import (
	"fmt"

	"crucible/compiler/source"
)

// Level is the severity of a Diagnostic.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Code is a short, stable, machine-readable diagnostic identifier.
type Code string

const (
	CodeImmediateTooLarge Code = "E0001"
	CodeUnresolvedGeneric Code = "E0002"
	CodePurityViolation Code = "E0003"
	CodeStorageOutsideContract Code = "E0004"
	CodeTooManyArguments Code = "E0005"
	CodeStringLengthMismatch Code = "E0006"
	CodeInternal Code = "E0999"
	CodeDeadCode Code = "W0001"
	CodeMissingReturn Code = "E0007"
	CodeUndeclaredKind Code = "E0008"
)

// Label annotates a span with a short explanatory message. The primary label
// of a Diagnostic points at the main offending span; secondary labels add
// context (e.g. "first defined here").
type Label struct {
	Span source.Span
	Message string
}

// Diagnostic is a single rendered problem: a level, an optional machine code,
// a primary label, any number of secondary labels, help strings, and an
// optional overall reason.
type Diagnostic struct {
	Level Level
	Code Code
	Primary Label
	Secondary []Label
	Help []string
	Reason string
}

func (d *Diagnostic) Error() string {
	if d.Primary.Span.IsZero() {
		return fmt.Sprintf("%s[%s]: %s", d.Level, d.Code, d.Primary.Message)
	}
	return fmt.Sprintf("%s[%s] at %s: %s", d.Level, d.Code, d.Primary.Span, d.Primary.Message)
}

func New(level Level, code Code, span source.Span, message string) *Diagnostic {
	return &Diagnostic{
		Level: level,
		Code: code,
		Primary: Label{Span: span, Message: message},
	}
}

func (d *Diagnostic) WithSecondary(span source.Span, message string) *Diagnostic {
	d.Secondary = append(d.Secondary, Label{Span: span, Message: message})
	return d
}

func (d *Diagnostic) WithHelp(help string) *Diagnostic {
	d.Help = append(d.Help, help)
	return d
}

func (d *Diagnostic) WithReason(reason string) *Diagnostic {
	d.Reason = reason
	return d
}

// Internal builds an internal-compiler-error diagnostic: a bug, not a user
// mistake. nearestSpan may be source.NoSpan if no span is available.
func Internal(nearestSpan source.Span, message string) *Diagnostic {
	return New(LevelError, CodeInternal, nearestSpan, "internal compiler error: "+message)
}

// Handler accumulates diagnostics across a compilation in a single unified
// slice rather than one slice per stage.
type Handler struct {
	diagnostics []*Diagnostic
}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Emit(d *Diagnostic) {
	h.diagnostics = append(h.diagnostics, d)
}

func (h *Handler) Diagnostics() []*Diagnostic {
	return h.diagnostics
}

func (h *Handler) HasErrors() bool {
	for _, d := range h.diagnostics {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

func (h *Handler) HasWarnings() bool {
	for _, d := range h.diagnostics {
		if d.Level == LevelWarning {
			return true
		}
	}
	return false
}

// Errors returns only the error-level diagnostics.
func (h *Handler) Errors() []*Diagnostic {
	var out []*Diagnostic
	for _, d := range h.diagnostics {
		if d.Level == LevelError {
			out = append(out, d)
		}
	}
	return out
}

// Ok reports whether the driver may proceed to the next stage: a
// warnings-as-errors build config turns any warning into an abort too.
func (h *Handler) Ok(warningsAsErrors bool) bool {
	if h.HasErrors() {
		return false
	}
	if warningsAsErrors && h.HasWarnings() {
		return false
	}
	return true
}
