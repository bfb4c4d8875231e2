package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "http://localhost:3000/files/")
	require.NoError(t, err)

	url, err := s.GetURL(ctx, "templates/7/form.pdf")
	require.NoError(t, err)
	assert.Empty(t, url, "missing object has no URL")

	res, err := s.Put(ctx, "/templates/7/form.pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "templates/7/form.pdf", res.Key)

	url, err = s.GetURL(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/files/templates/7/form.pdf", url)

	rc, err := s.Open(ctx, res.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.7", string(body))

	_, err = s.Put(ctx, res.Key, strings.NewReader("%PDF-2.0"))
	require.NoError(t, err)
	rc, err = s.Open(ctx, res.Key)
	require.NoError(t, err)
	body, err = io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-2.0", string(body), "put replaces the object")

	require.NoError(t, s.Delete(ctx, res.Key))
	require.NoError(t, s.Delete(ctx, res.Key), "deleting twice is fine")

	url, err = s.GetURL(ctx, res.Key)
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestLocalStore_RejectsBadPaths(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	for _, p := range []string{"", "/", "  "} {
		_, err := s.Put(ctx, p, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, p)
	}

	// traversal is cleaned into the root rather than escaping it
	res, err := s.Put(ctx, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", res.Key)
}

func TestLocalStore_EscapesURL(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	_, err = s.Put(ctx, "avatars/jane doe.png", strings.NewReader("x"))
	require.NoError(t, err)

	url, err := s.GetURL(ctx, "avatars/jane doe.png")
	require.NoError(t, err)
	assert.Equal(t, "/files/avatars/jane%20doe.png", url)
}

func TestLocalStore_CanceledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/files")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Put(ctx, "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
