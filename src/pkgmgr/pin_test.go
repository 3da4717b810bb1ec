package pkgmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Pin_StringParsePinRoundTrip(t *testing.T) {
	cases := []Pin{
		{Kind: PinGit, URL: "https://example.com/repo.git", Reference: "main", Digest: "0123456789abcdef0123456789abcdef01234567"},
		{Kind: PinIPFS, URL: "ipfs://bafybeigdyrzt", Digest: "bafybeigdyrzt"},
		{Kind: PinRegistry, URL: "forc.pub", Reference: "std@1.2.3", Digest: "deadbeef"},
		{Kind: PinPath, URL: "../local-lib"},
	}
	for _, want := range cases {
		s := want.String()
		got, err := ParsePin(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
}

func Test_ParsePin_RejectsMissingKindPrefix(t *testing.T) {
	_, err := ParsePin("no-plus-here")
	require.Error(t, err)
}

func Test_ParsePin_RejectsShortGitDigest(t *testing.T) {
	_, err := ParsePin("git+https://example.com/r.git?main#abc123")
	require.Error(t, err)
}

func Test_ParsePin_IPFSDigestSkipsHexValidation(t *testing.T) {
	_, err := ParsePin("ipfs+ipfs://bafybeigdyrzt#bafybeigdyrzt")
	require.NoError(t, err)
}
