package pkgmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	commits map[string]string // "repoURL@refName" -> commit
}

func (f *fakeFetcher) ResolveGitRef(repoURL string, ref GitRef) (string, error) {
	key := repoURL + "@" + refName(ref)
	if c, ok := f.commits[key]; ok {
		return c, nil
	}
	return "", assertNever("no fake commit for " + key)
}

func (f *fakeFetcher) FetchGit(repoURL, commit, dest string) error { return nil }

func assertNever(msg string) error { return &notFoundError{msg} }

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

func Test_Resolver_ResolveGit_ProducesPinWithResolvedCommit(t *testing.T) {
	fetcher := &fakeFetcher{commits: map[string]string{
		"https://example.com/core@v1.0.0": "1111111111111111111111111111111111111111",
	}}
	r := NewResolver(fetcher, nil, nil, "/tmp/fetch-root", "fetch-42")

	m := &Manifest{Dependencies: map[string]Dependency{
		"core": {Name: "core", Git: &GitSource{Repo: "https://example.com/core", Tag: "v1.0.0"}},
	}}

	out, err := r.Resolve(m)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1111111111111111111111111111111111111111", out[0].Pin.Digest)
	assert.Equal(t, "/tmp/fetch-root/fetch-42/core", out[0].Path)
}

func Test_Resolver_GitPatchTakesPrecedenceOverSourceURL(t *testing.T) {
	fetcher := &fakeFetcher{commits: map[string]string{
		"https://patched.example.com/core@v1.0.0": "2222222222222222222222222222222222222222",
	}}
	patches := PatchTable{"https://example.com/core": "https://patched.example.com/core"}
	r := NewResolver(fetcher, patches, nil, "/tmp", "f1")

	m := &Manifest{Dependencies: map[string]Dependency{
		"core": {Name: "core", Git: &GitSource{Repo: "https://example.com/core", Tag: "v1.0.0"}},
	}}
	out, err := r.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, "https://patched.example.com/core", out[0].Pin.URL)
}

func Test_Resolver_RegistryPatchPrefersNamespaceQualifiedKey(t *testing.T) {
	patches := PatchTable{
		"forc.pub": "https://registry.example.com",
		"forc.pub/acme": "https://acme-registry.example.com",
	}
	registry := map[string][]RegistryEntry{
		"oracle": {{Version: "2.0.0", Commit: "deadbeef"}, {Version: "1.0.0", Commit: "cafebabe"}},
	}
	r := NewResolver(&fakeFetcher{}, patches, registry, "/tmp", "f1")

	m := &Manifest{Dependencies: map[string]Dependency{
		"oracle": {Name: "oracle", Registry: &RegistrySource{Name: "oracle", Constraint: "^2.0", Namespace: "acme"}},
	}}
	out, err := r.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, "https://acme-registry.example.com", out[0].Pin.URL)
	assert.Equal(t, "deadbeef", out[0].Pin.Digest)
}

func Test_Resolver_RegistryPicksHighestSatisfyingVersion(t *testing.T) {
	registry := map[string][]RegistryEntry{
		"oracle": {
			{Version: "1.0.0", Commit: "c1"},
			{Version: "1.5.0", Commit: "c2"},
			{Version: "2.0.0", Commit: "c3"}, // excluded by the ^1 constraint below
		},
	}
	r := NewResolver(&fakeFetcher{}, nil, registry, "/tmp", "f1")
	m := &Manifest{Dependencies: map[string]Dependency{
		"oracle": {Name: "oracle", Registry: &RegistrySource{Name: "oracle", Constraint: "^1"}},
	}}
	out, err := r.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, "c2", out[0].Pin.Digest)
}

func Test_Resolver_PathDependencyNeedsNoFetcherCall(t *testing.T) {
	r := NewResolver(&fakeFetcher{}, nil, nil, "/tmp", "f1")
	m := &Manifest{Dependencies: map[string]Dependency{
		"std": {Name: "std", Path: &PathSource{Path: "../std"}},
	}}
	out, err := r.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, "../std", out[0].Path)
	assert.Equal(t, PinPath, out[0].Pin.Kind)
}
