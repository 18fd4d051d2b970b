package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// Yahoo fetches price quotes from the Yahoo Finance JSON endpoints. Three
// strategies are exposed, in decreasing order of data quality: daily candles
// (real traded closes), the chart meta block, and the bulk v7 quote API.
// The fallback orchestrator walks them in that order.
type Yahoo struct {
	cache   *Cache
	limiter *RateLimiter

	chartBase string
	quoteBase string
}

// NewYahoo creates a new Yahoo Finance data source.
func NewYahoo() *Yahoo {
	return &Yahoo{
		cache:     NewCache(1 * time.Minute),
		limiter:   NewRateLimiter(5, time.Second), // 5 req/s
		chartBase: "https://query1.finance.yahoo.com",
		quoteBase: "https://query2.finance.yahoo.com",
	}
}

// Name returns the data source name.
func (y *Yahoo) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance API types ---

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		PreviousClose      float64 `json:"previousClose"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuoteResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"quoteResponse"`
}

type yahooQuoteResult struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketVolume        int64   `json:"regularMarketVolume"`
	RegularMarketTime          int64   `json:"regularMarketTime"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type yahooSearchResponse struct {
	Quotes []yahooSearchQuote `json:"quotes"`
}

type yahooSearchQuote struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortname"`
	LongName  string `json:"longname"`
}

// --- Public methods ---

// GetCandleQuote derives a quote from the last two daily candles. This is
// the preferred strategy: the change is computed from real closes rather
// than whatever the meta block happens to hold.
func (y *Yahoo) GetCandleQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	result, err := y.fetchChart(ctx, symbol)
	if err != nil {
		return nil, err
	}

	closes, volumes := flattenCandles(result)
	if len(closes) < 2 {
		return nil, fmt.Errorf("yahoo candles %s: need 2 closes, got %d", symbol, len(closes))
	}

	quote := &models.Quote{
		Symbol:        utils.NormalizeSymbol(symbol),
		Price:         closes[len(closes)-1],
		PreviousClose: closes[len(closes)-2],
		Source:        y.Name() + " (candles)",
		AsOf:          time.Now(),
	}
	if len(volumes) > 0 {
		quote.Volume = volumes[len(volumes)-1]
	}
	quote.Derive()
	return quote, nil
}

// GetMetaQuote derives a quote from the chart meta block. Works when the
// candle arrays are empty (pre-open, illiquid scrips).
func (y *Yahoo) GetMetaQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	result, err := y.fetchChart(ctx, symbol)
	if err != nil {
		return nil, err
	}

	price := result.Meta.RegularMarketPrice
	if price == 0 {
		return nil, fmt.Errorf("yahoo meta %s: no market price", symbol)
	}
	prev := result.Meta.PreviousClose
	if prev == 0 {
		prev = result.Meta.ChartPreviousClose
	}

	quote := &models.Quote{
		Symbol:        utils.NormalizeSymbol(symbol),
		Price:         price,
		PreviousClose: prev,
		Source:        y.Name() + " (chart)",
		AsOf:          time.Now(),
	}
	quote.Derive()
	return quote, nil
}

// GetQuote returns a quote from the v7 bulk quote endpoint. Last resort:
// the endpoint is frequently gated, but when it answers it is cheap.
func (y *Yahoo) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	ySymbol := utils.ToYahooSymbol(symbol)

	cacheKey := "quote:" + ySymbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(*models.Quote), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", y.quoteBase, ySymbol)
	body, _, err := doGet(ctx, nil, url, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo quote %s: %w", ySymbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yahooQuoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo quote: %w", err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("yahoo API error: %s", resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	r := resp.QuoteResponse.Result[0]
	quote := &models.Quote{
		Symbol:        utils.NormalizeSymbol(symbol),
		Price:         r.RegularMarketPrice,
		PreviousClose: r.RegularMarketPreviousClose,
		Volume:        r.RegularMarketVolume,
		Source:        y.Name() + " (quote)",
		AsOf:          time.Unix(r.RegularMarketTime, 0),
	}
	if r.RegularMarketTime == 0 {
		quote.AsOf = time.Now()
	}
	quote.Derive()

	y.cache.Set(cacheKey, quote)
	return quote, nil
}

// searchResultLimit caps what a search returns; the autocomplete feed
// is queried wider because most of it is filtered away.
const searchResultLimit = 10

// SearchSymbols finds Indian listings matching a free-text query through
// the Yahoo autocomplete feed. Only .NS and .BO listings survive the
// filter; symbols are returned bare, with the exchange alongside.
func (y *Yahoo) SearchSymbols(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}

	cacheKey := "search:" + strings.ToLower(query)
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.([]models.SymbolSearchResult), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v1/finance/search?q=%s&quotesCount=20&newsCount=0&lang=en-US",
		y.quoteBase, url.QueryEscape(query))
	body, _, err := doGet(ctx, nil, u, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo search %q: %w", query, err)
	}
	data, err := readAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yahooSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo search: %w", err)
	}

	results := make([]models.SymbolSearchResult, 0, searchResultLimit)
	seen := make(map[string]bool, len(resp.Quotes))
	for _, q := range resp.Quotes {
		var exchange string
		switch {
		case strings.HasSuffix(q.Symbol, ".NS"):
			exchange = "NSE"
		case strings.HasSuffix(q.Symbol, ".BO"):
			exchange = "BSE"
		default:
			continue
		}
		base := utils.BaseSymbol(q.Symbol)
		if base == "" || seen[base] {
			continue
		}
		seen[base] = true
		results = append(results, models.SymbolSearchResult{
			Symbol:   base,
			Name:     coalesce(q.LongName, q.ShortName, base),
			Exchange: exchange,
		})
		if len(results) >= searchResultLimit {
			break
		}
	}

	y.cache.Set(cacheKey, results)
	return results, nil
}

// --- Helpers ---

// fetchChart loads the 2-day daily chart for a symbol, cached briefly so
// the candle and meta strategies share one network call.
func (y *Yahoo) fetchChart(ctx context.Context, symbol string) (*yahooChartResult, error) {
	ySymbol := utils.ToYahooSymbol(symbol)

	cacheKey := "chart:" + ySymbol
	if cached, ok := y.cache.Get(cacheKey); ok {
		return cached.(*yahooChartResult), nil
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=2d", y.chartBase, ySymbol)
	body, _, err := doGet(ctx, nil, url, map[string]string{
		"Accept": "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", ySymbol, err)
	}
	data, err := readAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp yahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse yahoo chart: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error: %s", resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	result := &resp.Chart.Result[0]
	y.cache.Set(cacheKey, result)
	return result, nil
}

// flattenCandles extracts non-nil closes and their volumes in order.
// Yahoo pads the arrays with nulls for sessions without trades.
func flattenCandles(result *yahooChartResult) ([]float64, []int64) {
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	q := result.Indicators.Quote[0]

	closes := make([]float64, 0, len(q.Close))
	volumes := make([]int64, 0, len(q.Volume))
	for i, c := range q.Close {
		if c == nil {
			continue
		}
		closes = append(closes, *c)
		if i < len(q.Volume) && q.Volume[i] != nil {
			volumes = append(volumes, *q.Volume[i])
		} else {
			volumes = append(volumes, 0)
		}
	}
	return closes, volumes
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
