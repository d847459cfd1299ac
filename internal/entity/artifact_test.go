package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docparse/constants"
)

func TestArtifactEncodingKeepsBytes(t *testing.T) {
	a := NewArtifact(constants.FormatMarkdown, "# caf\xe9 latin1")
	a.Add(constants.FormatJSON, `{"title":"café"}`)

	b, err := a.Encode()
	require.NoError(t, err)
	got, err := DecodeArtifact(b)
	require.NoError(t, err)

	assert.Equal(t, a.Payloads, got.Payloads)
	assert.Equal(t, constants.FormatMarkdown, got.Primary)
	assert.True(t, a.Equal(got))
}

func TestArtifactDigestDistinguishesInvalidBytes(t *testing.T) {
	a := NewArtifact(constants.FormatText, "caf\xe9")
	b := NewArtifact(constants.FormatText, "caf�")
	assert.False(t, a.Equal(b))
}

func TestArtifactValidUTF8StaysReadable(t *testing.T) {
	b, err := NewArtifact(constants.FormatMarkdown, "# Title").Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"primary":"md","payloads":{"md":"# Title"}}`, string(b))
}
