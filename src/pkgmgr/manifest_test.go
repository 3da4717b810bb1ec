package pkgmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
name = "my-contract"

[dependencies.std]
path = "../std"

[dependencies.core]
git_source = { git = "https://github.com/example/core", tag = "v1.0.0" }

[dependencies.oracle]
registry_source = { package = "oracle", version = "^2.0", namespace = "acme" }
`

func Test_DecodeManifest_ParsesEachSourceKind(t *testing.T) {
	m, err := DecodeManifest(sampleManifest)
	require.NoError(t, err)
	assert.Equal(t, "my-contract", m.Name)
	require.Len(t, m.Dependencies, 3)

	std := m.Dependencies["std"]
	assert.Equal(t, SourcePath, std.Kind())
	assert.Equal(t, "../std", std.Path.Path)

	core := m.Dependencies["core"]
	assert.Equal(t, SourceGit, core.Kind())
	assert.Equal(t, GitRef{Kind: RefTag, Tag: "v1.0.0"}, core.Git.ref())

	oracle := m.Dependencies["oracle"]
	assert.Equal(t, SourceRegistry, oracle.Kind())
	assert.Equal(t, "acme", oracle.Registry.Namespace)
}

func Test_DecodeManifest_RejectsInvalidTOML(t *testing.T) {
	_, err := DecodeManifest("not valid = = toml")
	require.Error(t, err)
}

func Test_GitSource_RefDefaultsToDefaultBranch(t *testing.T) {
	g := GitSource{Repo: "https://example.com/r"}
	assert.Equal(t, GitRef{Kind: RefDefaultBranch}, g.ref())
}
