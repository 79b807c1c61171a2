package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load()
	require.NoError(t, err)

	for _, path := range []string{
		"/health/live",
		"/lifecycle/{entity_type}/states",
		"/lifecycle/{entity_type}/transition-rules",
		"/lifecycle/{entity_type}/entities/{entity_id}/transitions",
		"/numbering/{entity_type}/entities/{entity_id}/number",
		"/numbering/{entity_type}/batch",
		"/admin/log-level",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, doc, again)
	assert.NotEmpty(t, Document())
}
