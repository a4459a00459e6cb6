package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFundingPulse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/fapi/v1/premiumIndex":
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","markPrice":"43000.5","indexPrice":"43001","lastFundingRate":"0.0001","nextFundingTime":1700000000000,"interestRate":"0.0001","time":1700000000000}]`))
		case "/futures/data/globalLongShortAccountRatio":
			_, _ = w.Write([]byte(`[{"symbol":"BTCUSDT","longShortRatio":"1.25","longAccount":"0.55","shortAccount":"0.45","timestamp":1700000000000}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := New(Config{RESTBaseURL: srv.URL})
	pulse, err := src.FundingPulse(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", pulse.Symbol)
	assert.InDelta(t, 43000.5, pulse.MarkPrice, 1e-9)
	assert.InDelta(t, 0.0001, pulse.FundingRate, 1e-12)
	if assert.NotNil(t, pulse.LongShortRatio) {
		assert.InDelta(t, 1.25, *pulse.LongShortRatio, 1e-9)
	}
}

func TestFundingPulseUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":-1000,"msg":"boom"}`))
	}))
	defer srv.Close()

	_, err := New(Config{RESTBaseURL: srv.URL}).FundingPulse(context.Background())
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{Symbol: " ethusdt "}).withDefaults()
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "https://fapi.binance.com", cfg.RESTBaseURL)
	assert.Equal(t, "1h", cfg.RatioPeriod)
}
