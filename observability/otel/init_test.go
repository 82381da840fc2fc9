package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders(" authorization = Bearer x ,, tenant=a")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"authorization": "Bearer x", "tenant": "a"}, headers)

	headers, err = ParseHeaders("")
	require.NoError(t, err)
	require.Empty(t, headers)

	_, err = ParseHeaders("tenant=a,broken")
	require.Error(t, err)
	_, err = ParseHeaders("=empty")
	require.Error(t, err)
}

func TestResourceCarriesGenesisHash(t *testing.T) {
	res, err := Config{ServiceName: "swapd", Environment: "test", GenesisHash: "0a0b"}.Resource()
	require.NoError(t, err)

	value, ok := res.Set().Value(GenesisHashKey)
	require.True(t, ok)
	require.Equal(t, "0a0b", value.AsString())
	value, ok = res.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "swapd", value.AsString())

	res, err = Config{ServiceName: "swapd"}.Resource()
	require.NoError(t, err)
	_, ok = res.Set().Value(GenesisHashKey)
	require.False(t, ok)
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.ErrorIs(t, err, ErrServiceName)

	shutdown, err := Init(context.Background(), Config{ServiceName: "swapd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.False(t, Config{}.Enabled())
}
