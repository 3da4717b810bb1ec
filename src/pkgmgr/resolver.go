package pkgmgr

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Fetcher is the single seam where network I/O happens. ResolveGitRef turns
// a repo URL and ref into the 40-hex commit it currently names, via a
// clone-less `ls-remote`; FetchGit materializes that commit's tree at dest.
// Production code uses gitFetcher (go-git); tests substitute a fake.
type Fetcher interface {
	ResolveGitRef(repoURL string, ref GitRef) (commit string, err error)
	FetchGit(repoURL, commit, dest string) error
}

// gitFetcher is the real Fetcher, backed by go-git/v5.
type gitFetcher struct{}

func (gitFetcher) ResolveGitRef(repoURL string, ref GitRef) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("I/O error: ls-remote %s: %w", repoURL, err)
	}

	want := refName(ref)
	for _, r := range refs {
		if want != "" && r.Name.Short() == want {
			return r.Hash.String(), nil
		}
		if ref.Kind == RefRev && r.Hash.String() == ref.Rev {
			return r.Hash.String(), nil
		}
	}
	if ref.Kind == RefDefaultBranch {
		if commit, ok := resolveHead(refs); ok {
			return commit, nil
		}
	}
	return "", fmt.Errorf("I/O error: ref %q not found at %s", want, repoURL)
}

// resolveHead finds the symbolic HEAD ref among refs, then resolves its
// target to the commit hash that target name currently points to — the
// "default branch" case of ls-remote, where the server's HEAD is a
// reference to whichever branch is the repository's default.
func resolveHead(refs []*plumbing.Reference) (string, bool) {
	var headTarget plumbing.ReferenceName
	for _, r := range refs {
		if r.Name == plumbing.HEAD {
			headTarget = r.Target
			break
		}
	}
	if headTarget == "" {
		return "", false
	}
	for _, r := range refs {
		if r.Name == headTarget {
			return r.Hash.String(), true
		}
	}
	return "", false
}

func refName(ref GitRef) string {
	switch ref.Kind {
	case RefBranch:
		return ref.Branch
	case RefTag:
		return ref.Tag
	case RefRev:
		return ref.Rev
	default:
		return ""
	}
}

func (gitFetcher) FetchGit(repoURL, commit, dest string) error {
	repo, err := git.PlainClone(dest, false, &git.CloneOptions{URL: repoURL})
	if err != nil {
		return fmt.Errorf("I/O error: clone %s into %s: %w", repoURL, dest, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("I/O error: worktree for %s: %w", dest, err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(commit)}); err != nil {
		return fmt.Errorf("I/O error: checkout %s at %s: %w", dest, commit, err)
	}
	return nil
}

// RegistryEntry is one resolvable version of a registered package, as the
// registry's own index would list it.
type RegistryEntry struct {
	Version string
	Commit string // the git commit (or content hash) this version pins to
}

// PatchTable maps a patch key to an override source URL, implementing the
// precedence a namespace-qualified key takes over the bare key: looking up
// `forc.pub/<namespace>` first, falling back to `forc.pub` (or, for a git
// dependency being patched, the dependency's own source URL as the key).
type PatchTable map[string]string

// Lookup resolves a patch key with the precedence rule: a namespace-
// qualified key, if present, always wins over its unqualified parent.
func (pt PatchTable) Lookup(baseKey, namespace string) (string, bool) {
	if namespace != "" {
		if v, ok := pt[baseKey+"/"+namespace]; ok {
			return v, true
		}
	}
	v, ok := pt[baseKey]
	return v, ok
}

// Resolver walks a manifest's dependencies, resolving each source to a Pin
// plus a local fetch-plan path.
type Resolver struct {
	fetcher Fetcher
	patches PatchTable
	registry map[string][]RegistryEntry // package name -> published versions
	fetchRoot string // parent of every per-fetch directory
	fetchID string // process-unique prefix for this run's directories
}

// NewResolver constructs a Resolver. fetchID should be unique per process
// invocation (the compile driver mints one at startup) so concurrent
// resolutions never collide on the same checkout directory.
func NewResolver(fetcher Fetcher, patches PatchTable, registry map[string][]RegistryEntry, fetchRoot, fetchID string) *Resolver {
	return &Resolver{fetcher: fetcher, patches: patches, registry: registry, fetchRoot: fetchRoot, fetchID: fetchID}
}

// NewGitResolver is a convenience constructor using the real go-git-backed
// Fetcher.
func NewGitResolver(patches PatchTable, registry map[string][]RegistryEntry, fetchRoot, fetchID string) *Resolver {
	return NewResolver(gitFetcher{}, patches, registry, fetchRoot, fetchID)
}

// Resolved pairs a dependency's Pin with the local path its source was (or
// will be) fetched into.
type Resolved struct {
	Name string
	Pin Pin
	Path string
}

// checkoutDir is every dependency's fetch-plan path: the fetch root, a
// process-unique fetch-id directory, then the dependency name — so two
// concurrent resolutions never write into the same directory even when
// resolving the same dependency name.
func (r *Resolver) checkoutDir(depName string) string {
	return filepath.Join(r.fetchRoot, r.fetchID, depName)
}

// Resolve walks every dependency in m and returns one Resolved record each,
// sorted by dependency name so the order is deterministic.
func (r *Resolver) Resolve(m *Manifest) ([]Resolved, error) {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Resolved, 0, len(names))
	for _, name := range names {
		dep := m.Dependencies[name]
		res, err := r.resolveOne(dep)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Resolver) resolveOne(dep Dependency) (Resolved, error) {
	switch dep.Kind() {
	case SourcePath:
		return Resolved{Name: dep.Name, Pin: Pin{Kind: PinPath, URL: dep.Path.Path}, Path: dep.Path.Path}, nil
	case SourceGit:
		return r.resolveGit(dep)
	case SourceIPFS:
		return r.resolveIPFS(dep)
	case SourceRegistry:
		return r.resolveRegistry(dep)
	default:
		return Resolved{}, fmt.Errorf("manifest error: dependency %q has no resolvable source", dep.Name)
	}
}

func (r *Resolver) resolveGit(dep Dependency) (Resolved, error) {
	repoURL := dep.Git.Repo
	if patched, ok := r.patches.Lookup(repoURL, ""); ok {
		repoURL = patched
	}

	ref := dep.Git.ref()
	commit, err := r.fetcher.ResolveGitRef(repoURL, ref)
	if err != nil {
		return Resolved{}, err
	}

	pin := Pin{Kind: PinGit, URL: repoURL, Reference: refName(ref), Digest: commit}
	return Resolved{Name: dep.Name, Pin: pin, Path: r.checkoutDir(dep.Name)}, nil
}

func (r *Resolver) resolveIPFS(dep Dependency) (Resolved, error) {
	c, err := dep.IPFS.parsedCID()
	if err != nil {
		return Resolved{}, err
	}
	pin := Pin{Kind: PinIPFS, URL: "ipfs://" + c.String(), Digest: c.String()}
	return Resolved{Name: dep.Name, Pin: pin, Path: r.checkoutDir(dep.Name)}, nil
}

func (r *Resolver) resolveRegistry(dep Dependency) (Resolved, error) {
	constraint, err := dep.Registry.parsedConstraint()
	if err != nil {
		return Resolved{}, err
	}

	entries := r.registry[dep.Registry.Name]
	best, ok := bestMatch(constraint, entries)
	if !ok {
		return Resolved{}, fmt.Errorf("manifest error: no version of %q satisfies %q", dep.Registry.Name, dep.Registry.Constraint)
	}

	patchKey := "forc.pub"
	url := patchKey
	if patched, ok := r.patches.Lookup(patchKey, dep.Registry.Namespace); ok {
		url = patched
	}

	pin := Pin{Kind: PinRegistry, URL: url, Reference: dep.Registry.Name + "@" + best.Version, Digest: best.Commit}
	return Resolved{Name: dep.Name, Pin: pin, Path: r.checkoutDir(dep.Name)}, nil
}

// bestMatch picks the highest version among entries satisfying constraint.
func bestMatch(constraint *semver.Constraints, entries []RegistryEntry) (RegistryEntry, bool) {
	var best RegistryEntry
	var bestVer *semver.Version
	for _, e := range entries {
		v, err := semver.NewVersion(e.Version)
		if err != nil || !constraint.Check(v) {
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			bestVer = v
			best = e
		}
	}
	return best, bestVer != nil
}
