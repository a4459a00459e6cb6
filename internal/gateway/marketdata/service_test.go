package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"botcore/internal/gateway/binance"
	"botcore/internal/gateway/provider"
	"botcore/internal/pkg/circuit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuotes struct{ mock.Mock }

func (m *mockQuotes) Quotes(ctx context.Context) (map[string]Asset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]Asset), args.Error(1)
}

type mockResearch struct{ mock.Mock }

func (m *mockResearch) Research(ctx context.Context, topic Topic, now time.Time) (string, error) {
	args := m.Called(ctx, topic, now)
	return args.String(0), args.Error(1)
}

type mockFunding struct{ mock.Mock }

func (m *mockFunding) FundingPulse(ctx context.Context) (binance.FundingPulse, error) {
	args := m.Called(ctx)
	return args.Get(0).(binance.FundingPulse), args.Error(1)
}

var fixedNow = time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)

func TestFetchAllSources(t *testing.T) {
	price := 13.5
	q := new(mockQuotes)
	q.On("Quotes", mock.Anything).Return(map[string]Asset{"VIX (Equity Volatility)": {Price: &price}}, nil)
	r := new(mockResearch)
	r.On("Research", mock.Anything, TopicMacro, fixedNow).Return("fed on hold", nil)
	r.On("Research", mock.Anything, TopicCatalysts, fixedNow).Return("", errors.New("rate limited"))
	f := new(mockFunding)
	f.On("FundingPulse", mock.Anything).Return(binance.FundingPulse{Symbol: "BTCUSDT", FundingRate: 0.0001}, nil)

	svc := NewService(Options{Quotes: q, Research: r, Funding: f, Now: func() time.Time { return fixedNow }})
	got, err := svc.Fetch(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", got.Symbol)
	assert.Equal(t, fixedNow, got.Timestamp)
	assert.Contains(t, got.RiskAssets, "VIX (Equity Volatility)")
	assert.Equal(t, "fed on hold", got.MacroAndFed)
	assert.Empty(t, got.CatalystsNews)
	assert.Equal(t, map[string]string{"catalysts_news": "rate limited"}, got.Errors)
	require.NotNil(t, got.CryptoFunding)
	r.AssertExpectations(t)
}

func TestFetchAllFailed(t *testing.T) {
	q := new(mockQuotes)
	q.On("Quotes", mock.Anything).Return(nil, errors.New("down"))
	svc := NewService(Options{Quotes: q, Now: func() time.Time { return fixedNow }})
	_, err := svc.Fetch(context.Background(), "EURUSD")
	assert.Error(t, err)
}

func TestFetchNoSources(t *testing.T) {
	_, err := NewService(Options{}).Fetch(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestBreakerSkipsFailingUpstream(t *testing.T) {
	q := new(mockQuotes)
	q.On("Quotes", mock.Anything).Return(nil, errors.New("down")).Twice()
	f := new(mockFunding)
	f.On("FundingPulse", mock.Anything).Return(binance.FundingPulse{Symbol: "BTCUSDT"}, nil)
	svc := NewService(Options{Quotes: q, Funding: f, BreakerFailures: 2, BreakerCooldown: time.Hour, Now: func() time.Time { return fixedNow }})

	for i := 0; i < 3; i++ {
		_, err := svc.Fetch(context.Background(), "EURUSD")
		require.NoError(t, err)
	}
	got, _ := svc.Fetch(context.Background(), "EURUSD")
	assert.Equal(t, circuit.ErrOpen.Error(), got.Errors[sourceRiskAssets])
	q.AssertNumberOfCalls(t, "Quotes", 2)
}

func TestYahooQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/get-quote-v2", r.URL.Path)
		assert.Equal(t, "^VIX,GC=F", r.URL.Query().Get("symbols"))
		assert.Equal(t, "k", r.Header.Get("x-rapidapi-key"))
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"^VIX","regularMarketPrice":13.2,"regularMarketChangePercent":-1.5,
			 "quoteSummary":{"summaryDetail":{"fiftyDayAverage":{"raw":14.1,"fmt":"14.10"},"fiftyTwoWeekHigh":22.5}}},
			{"symbol":"GC=F","regularMarketPrice":2050.1},
			{"symbol":"AAPL","regularMarketPrice":190}
		]}}`))
	}))
	defer srv.Close()

	y, err := NewYahooQuotes(YahooConfig{Host: "yahoo.test", APIKey: "k", Symbols: []string{"^VIX", "GC=F"}, BaseURL: srv.URL})
	require.NoError(t, err)
	got, err := y.Quotes(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	vix := got["VIX (Equity Volatility)"]
	require.NotNil(t, vix.Price)
	assert.InDelta(t, 13.2, *vix.Price, 1e-9)
	require.NotNil(t, vix.FiftyDayAvg)
	assert.InDelta(t, 14.1, *vix.FiftyDayAvg, 1e-9)
	assert.Nil(t, vix.TwoHundredDayAvg)
	assert.Contains(t, got, "Gold")
}

type mockModel struct{ mock.Mock }

func (m *mockModel) ID() string           { return "openrouter:perplexity/sonar-pro" }
func (m *mockModel) Enabled() bool        { return true }
func (m *mockModel) SupportsVision() bool { return false }
func (m *mockModel) Call(ctx context.Context, p provider.ChatPayload) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func TestResearcherPrompt(t *testing.T) {
	model := new(mockModel)
	model.On("Call", mock.Anything, mock.MatchedBy(func(p provider.ChatPayload) bool {
		return p.MaxTokens == researchMaxTokens &&
			assert.Contains(t, p.User, "today is 2024-01-15") &&
			assert.Contains(t, p.User, "Top 3-5 news items from TODAY (2024-01-15)")
	})).Return("  calendar  ", nil)

	out, err := NewResearcher(model).Research(context.Background(), TopicCatalysts, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "calendar", out)

	_, err = researchPrompt(Topic("weather"), fixedNow)
	assert.Error(t, err)
}
