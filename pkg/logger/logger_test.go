package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		require.NoError(t, Init(level, "production"))
		assert.NotNil(t, Get())
	}
	require.NoError(t, Init("debug", "development"))
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.NotNil(t, WithContext(ctx))
}

func TestDomainFields(t *testing.T) {
	assert.Equal(t, "date", Date("20250101").Key)
	assert.Equal(t, "kind", Kind("daily_consumption").Key)
	assert.Equal(t, "op", Op("save").Key)
	assert.Equal(t, "path", Path("/tmp/x").Key)
}
