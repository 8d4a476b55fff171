package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopFactory(Sink) Handler {
	return HandlerFunc(func(context.Context, map[string]any, HandlerContext) error { return nil })
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("log_service", nopFactory))
	require.NoError(t, r.Register("scrape_service", nopFactory))

	err := r.Register("log_service", nopFactory)
	assert.ErrorIs(t, err, ErrDuplicateService)

	assert.Error(t, r.Register("", nopFactory))
	assert.Error(t, r.Register("other", nil))

	f, err := r.Lookup("log_service")
	require.NoError(t, err)
	assert.NotNil(t, f)

	_, err = r.Lookup("missing")
	assert.ErrorIs(t, err, ErrNoHandlerFactory)

	assert.True(t, r.Has("scrape_service"))
	assert.False(t, r.Has("missing"))
	assert.Equal(t, []string{"log_service", "scrape_service"}, r.Names())
}
