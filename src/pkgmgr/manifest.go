// Package pkgmgr models the dependency manifest -> resolution -> pin
// pipeline: a manifest names dependencies by local path, git source, IPFS
// content id, or registry entry; a Resolver turns each into a Pin (a
// resolved, serializable record) plus a local filesystem path. The pure
// parts of this pipeline — manifest decoding, pin string round-tripping,
// patch-key precedence — are ordinary functions with no I/O; go-git is the
// single seam where network access happens, kept behind the Fetcher
// interface so the rest of the package stays deterministic and testable.
package pkgmgr

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"github.com/ipfs/go-cid"
)

// RefKind names which field of a GitSource's Ref is populated.
type RefKind int

const (
	RefBranch RefKind = iota
	RefTag
	RefRev
	RefDefaultBranch
)

// GitRef is a reference into a git repository: exactly one of Branch, Tag
// or Rev is meaningful, selected by Kind; RefDefaultBranch carries none.
type GitRef struct {
	Kind RefKind
	Branch string
	Tag string
	Rev string
}

// PathSource is a dependency resolved from the local filesystem, relative
// to the manifest's own directory. It needs no resolution step — its Pin is
// synthesized directly from the path.
type PathSource struct {
	Path string `toml:"path"`
}

// GitSource is a dependency fetched from a git remote at a specific ref.
type GitSource struct {
	Repo string `toml:"git"`
	Branch string `toml:"branch,omitempty"`
	Tag string `toml:"tag,omitempty"`
	Rev string `toml:"rev,omitempty"`
}

func (g GitSource) ref() GitRef {
	switch {
	case g.Branch != "":
		return GitRef{Kind: RefBranch, Branch: g.Branch}
	case g.Tag != "":
		return GitRef{Kind: RefTag, Tag: g.Tag}
	case g.Rev != "":
		return GitRef{Kind: RefRev, Rev: g.Rev}
	default:
		return GitRef{Kind: RefDefaultBranch}
	}
}

// IPFSSource is a dependency addressed by content id.
type IPFSSource struct {
	CID string `toml:"ipfs"`
}

// parsedCID decodes CID, validating it the way irgen validates every other
// external contract at the boundary where it enters the pipeline.
func (s IPFSSource) parsedCID() (cid.Cid, error) {
	c, err := cid.Decode(s.CID)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("manifest error: invalid IPFS content id %q: %w", s.CID, err)
	}
	return c, nil
}

// RegistrySource is a dependency resolved against a semver-constrained
// registry entry, optionally namespaced.
type RegistrySource struct {
	Name string `toml:"package"`
	Constraint string `toml:"version"`
	Namespace string `toml:"namespace,omitempty"`
}

func (s RegistrySource) parsedConstraint() (*semver.Constraints, error) {
	c, err := semver.NewConstraint(s.Constraint)
	if err != nil {
		return nil, fmt.Errorf("manifest error: invalid version constraint %q for package %q: %w", s.Constraint, s.Name, err)
	}
	return c, nil
}

// Dependency is one manifest entry. Exactly one of Path/Git/IPFS/Registry is
// non-zero; Kind reports which.
type Dependency struct {
	Name string
	Path *PathSource `toml:"path,omitempty"`
	Git *GitSource `toml:"git_source,omitempty"`
	IPFS *IPFSSource `toml:"ipfs_source,omitempty"`
	Registry *RegistrySource `toml:"registry_source,omitempty"`
}

// SourceKind identifies a Dependency's populated source field.
type SourceKind int

const (
	SourceInvalid SourceKind = iota
	SourcePath
	SourceGit
	SourceIPFS
	SourceRegistry
)

// Kind reports which source field this dependency populates, or
// SourceInvalid if the manifest gave none or more than one (a decode-time
// manifest error the caller should report before resolving anything).
func (d Dependency) Kind() SourceKind {
	set := 0
	kind := SourceInvalid
	if d.Path != nil {
		set++
		kind = SourcePath
	}
	if d.Git != nil {
		set++
		kind = SourceGit
	}
	if d.IPFS != nil {
		set++
		kind = SourceIPFS
	}
	if d.Registry != nil {
		set++
		kind = SourceRegistry
	}
	if set != 1 {
		return SourceInvalid
	}
	return kind
}

// Manifest is a decoded dependency file: one entry per named dependency.
type Manifest struct {
	Name string `toml:"name"`
	Dependencies map[string]Dependency `toml:"dependencies"`
}

// DecodeManifest parses raw TOML text into a Manifest, filling each
// Dependency's Name from its table key (BurntSushi/toml does not thread map
// keys back into the decoded struct on its own).
func DecodeManifest(raw string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.Decode(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest error: invalid TOML: %w", err)
	}
	for name, dep := range m.Dependencies {
		dep.Name = name
		if dep.Kind() == SourceInvalid {
			return nil, fmt.Errorf("manifest error: dependency %q must name exactly one source", name)
		}
		m.Dependencies[name] = dep
	}
	return &m, nil
}
