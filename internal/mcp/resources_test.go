package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/search"
)

func TestReadResource(t *testing.T) {
	s := newTestServer(t, Dependencies{})

	t.Run("joins chunks in order", func(t *testing.T) {
		got, err := s.ReadResource(context.Background(), DocURIPrefix+"git-revert.txt")

		require.NoError(t, err)
		require.Len(t, got.Contents, 1)
		assert.Equal(t, "text/plain", got.Contents[0].MIMEType)
		assert.Equal(t,
			"NAME\n----\ngit-revert - Revert some existing commits\n\nDESCRIPTION\n-----------\nRevert commits.",
			got.Contents[0].Text)
	})

	for name, uri := range map[string]string{
		"unknown document": DocURIPrefix + "git-log.txt",
		"wrong scheme":     "file://git-revert.txt",
		"empty path":       DocURIPrefix,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.ReadResource(context.Background(), uri)

			require.Error(t, err)
			assert.Equal(t, ErrCodeMethodNotFound, MapError(err).Code)
		})
	}
}

func TestReadResource_CorruptIndex(t *testing.T) {
	s := newTestServer(t, Dependencies{Index: brokenIndex{err: errors.CorruptIndex("bad", nil)}})

	_, err := s.ReadResource(context.Background(), DocURIPrefix+"git-revert.txt")

	assert.Equal(t, ErrCodeIndexUnavailable, MapError(err).Code)
}

func TestRegisterResources(t *testing.T) {
	t.Run("published index", func(t *testing.T) {
		s := newTestServer(t, Dependencies{})
		assert.NoError(t, s.RegisterResources())
	})

	t.Run("nothing published", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Index: search.StaticIndex{}})
		assert.NoError(t, s.RegisterResources())
	})

	t.Run("corrupt", func(t *testing.T) {
		s := newTestServer(t, Dependencies{Index: brokenIndex{err: errors.CorruptIndex("bad", nil)}})
		assert.Error(t, s.RegisterResources())
	})
}
