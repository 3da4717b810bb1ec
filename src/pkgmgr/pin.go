package pkgmgr

import (
	"fmt"
	"regexp"
	"strings"
)

// PinKind mirrors SourceKind but excludes SourceInvalid — a Pin always
// names a real source kind by construction.
type PinKind string

const (
	PinPath PinKind = "path"
	PinGit PinKind = "git"
	PinIPFS PinKind = "ipfs"
	PinRegistry PinKind = "registry"
)

// Pin is the resolved, serializable record a Resolver produces for one
// dependency: its source plus the commit hash or content hash pinning it to
// an exact revision.
type Pin struct {
	Kind PinKind
	URL string
	Reference string
	Digest string
}

var hexDigestPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// String renders p as `<kind>+<url>?<reference>#<digest>`, omitting the
// `?<reference>` segment entirely when Reference is empty (a path pin has
// neither a reference nor a digest, so it renders as just `path+<path>`).
func (p Pin) String() string {
	var b strings.Builder
	b.WriteString(string(p.Kind))
	b.WriteByte('+')
	b.WriteString(p.URL)
	if p.Reference != "" {
		b.WriteByte('?')
		b.WriteString(p.Reference)
	}
	if p.Digest != "" {
		b.WriteByte('#')
		b.WriteString(p.Digest)
	}
	return b.String()
}

// ParsePin is String's inverse. It validates the digest width for git pins
// (a 40-char lowercase hex commit hash) but not for ipfs pins, whose digest
// is a content id in its own native encoding rather than a hex commit hash.
func ParsePin(s string) (Pin, error) {
	kindStr, rest, ok := strings.Cut(s, "+")
	if !ok {
		return Pin{}, fmt.Errorf("invalid pin %q: missing <kind>+ prefix", s)
	}
	kind := PinKind(kindStr)
	switch kind {
	case PinPath, PinGit, PinIPFS, PinRegistry:
	default:
		return Pin{}, fmt.Errorf("invalid pin %q: unknown kind %q", s, kindStr)
	}

	url := rest
	digest := ""
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		url, digest = rest[:i], rest[i+1:]
	}
	reference := ""
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url, reference = url[:i], url[i+1:]
	}

	p := Pin{Kind: kind, URL: url, Reference: reference, Digest: digest}
	if kind == PinGit && digest != "" && !hexDigestPattern.MatchString(digest) {
		return Pin{}, fmt.Errorf("invalid pin %q: git digest must be a 40-char lowercase hex commit hash, got %q", s, digest)
	}
	return p, nil
}
