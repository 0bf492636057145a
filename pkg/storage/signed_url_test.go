package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("doc-1", "CSE20001/ab12cd34ef.pdf")
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	docID, fileKey, _, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
	require.Equal(t, "CSE20001/ab12cd34ef.pdf", fileKey)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, _, err := signer.Generate("doc-1", "CSE20001/ab12cd34ef.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	require.Error(t, err)

	other := NewSignedURLSigner("different", time.Minute)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLRejectsExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", -time.Minute)

	token, _, err := signer.Generate("doc-1", "CSE20001/ab12cd34ef.pdf")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	_, _, err := signer.Generate("", "key")
	require.Error(t, err)

	_, _, err = signer.Generate("doc-1", "")
	require.Error(t, err)
}
