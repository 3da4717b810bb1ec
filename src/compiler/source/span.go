// Package source holds the small value types shared by every later stage of
// the pipeline to point back at the original program text without owning a
// front end of its own.
package source

import "fmt"

// Span identifies a range of text in a single source file. It is produced by
// the (out-of-scope) parser and type checker and threaded through the TAST,
// IR, diagnostics and immediate-width errors so every stage can report
// exactly where a problem came from.
type Span struct {
	File string
	StartLine int
	StartCol int
	EndLine int
	EndCol int
}

// NoSpan is used internally for values the compiler has already proven
// correct and that never need to be reported to a user.
var NoSpan = Span{}

func (s Span) IsZero() bool {
	return s == Span{}
}

func (s Span) String() string {
	if s.IsZero() {
		return "<no span>"
	}
	if s.StartLine == s.EndLine {
		return fmt.Sprintf("%s:%d:%d-%d", s.File, s.StartLine, s.StartCol, s.EndCol)
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", s.File, s.StartLine, s.StartCol, s.EndLine, s.EndCol)
}
