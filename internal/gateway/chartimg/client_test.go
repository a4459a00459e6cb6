package chartimg

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"botcore/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func TestInterval(t *testing.T) {
	assert.Equal(t, "60", Interval("H1"))
	assert.Equal(t, "240", Interval("4h"))
	assert.Equal(t, "D", Interval("1D_DATA"))
	assert.Equal(t, "W", Interval(market.W1))
	assert.Equal(t, "60", Interval("H2"))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/raw":
			assert.Equal(t, "FX:EURUSD", r.URL.Query().Get("symbol"))
			assert.Equal(t, "240", r.URL.Query().Get("interval"))
			assert.Equal(t, "secret", r.Header.Get("X-RapidAPI-Key"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/link":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/img.png"}`))
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/b64":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":"` + base64.StdEncoding.EncodeToString(pngBytes) + `"}`))
		case "/empty":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limited"))
		}
	}))
	defer srv.Close()

	build := func(path string) *Client {
		c, err := New(Config{BaseURL: srv.URL + path, APIKey: "secret", SymbolPrefix: "FX"})
		require.NoError(t, err)
		return c
	}
	ctx := context.Background()

	t.Run("raw image", func(t *testing.T) {
		img, err := build("/raw").Render(ctx, "eurusd", market.H4, nil)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, img)
	})
	t.Run("json url is downloaded", func(t *testing.T) {
		img, err := build("/link").Render(ctx, "EURUSD", market.H1, nil)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, img)
	})
	t.Run("json base64 data", func(t *testing.T) {
		img, err := build("/b64").Render(ctx, "EURUSD", market.H1, nil)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, img)
	})
	t.Run("json without image", func(t *testing.T) {
		_, err := build("/empty").Render(ctx, "EURUSD", market.H1, nil)
		assert.ErrorIs(t, err, ErrNoImage)
	})
	t.Run("http error", func(t *testing.T) {
		_, err := build("/limited").Render(ctx, "EURUSD", market.H1, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
	})
}

func TestSymbolPrefix(t *testing.T) {
	c, err := New(Config{APIKey: "k", SymbolPrefix: "FX"})
	require.NoError(t, err)
	assert.Equal(t, "FX:GBPUSD", c.Symbol("gbpusd"))
	assert.Equal(t, "OANDA:XAUUSD", c.Symbol("OANDA:XAUUSD"))
}
