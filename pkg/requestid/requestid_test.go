package requestid

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	id := Generate()
	require.NotEmpty(t, id)

	ctx := ToContext(context.Background(), id)
	assert.Equal(t, id, FromContext(ctx))

	ptr := FromContextPtr(ctx)
	require.NotNil(t, ptr)
	assert.Equal(t, id, *ptr)

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	require.NoError(t, err)
	assert.Equal(t, id, FromRequest(r))
}

func TestMissingID(t *testing.T) {
	assert.Empty(t, FromContext(context.Background()))
	assert.Nil(t, FromContextPtr(context.Background()))
}
