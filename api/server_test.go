package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seenimoa/scripdesk/internal/config"
	"github.com/seenimoa/scripdesk/internal/docs"
	"github.com/seenimoa/scripdesk/internal/llm"
	"github.com/seenimoa/scripdesk/internal/logging"
	"github.com/seenimoa/scripdesk/internal/orchestrator"
	"github.com/seenimoa/scripdesk/internal/store"
	"github.com/seenimoa/scripdesk/pkg/models"
)

// --- provider fakes ---

var errDown = fmt.Errorf("provider down")

type fakePrices struct {
	candle func(ctx context.Context, symbol string) (*models.Quote, error)
	meta   func(ctx context.Context, symbol string) (*models.Quote, error)
	quote  func(ctx context.Context, symbol string) (*models.Quote, error)
	search func(ctx context.Context, query string) ([]models.SymbolSearchResult, error)
}

func (f *fakePrices) GetCandleQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if f.candle == nil {
		return nil, errDown
	}
	return f.candle(ctx, symbol)
}

func (f *fakePrices) GetMetaQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if f.meta == nil {
		return nil, errDown
	}
	return f.meta(ctx, symbol)
}

func (f *fakePrices) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if f.quote == nil {
		return nil, errDown
	}
	return f.quote(ctx, symbol)
}

func (f *fakePrices) SearchSymbols(ctx context.Context, query string) ([]models.SymbolSearchResult, error) {
	if f.search == nil {
		return nil, errDown
	}
	return f.search(ctx, query)
}

type fakeBSE struct {
	announcements func(ctx context.Context, scripCode string, from, to time.Time) ([]models.FilingRecord, error)
	category      func(ctx context.Context, scripCode, category string, from, to time.Time) ([]models.FilingRecord, error)
	quoteSearch   func(ctx context.Context, symbol string) (string, error)
}

func (f *fakeBSE) GetAnnouncements(ctx context.Context, scripCode string, from, to time.Time) ([]models.FilingRecord, error) {
	if f.announcements == nil {
		return nil, errDown
	}
	return f.announcements(ctx, scripCode, from, to)
}

func (f *fakeBSE) GetCategoryFilings(ctx context.Context, scripCode, category string, from, to time.Time) ([]models.FilingRecord, error) {
	if f.category == nil {
		return nil, errDown
	}
	return f.category(ctx, scripCode, category, from, to)
}

func (f *fakeBSE) QuoteSearch(ctx context.Context, symbol string) (string, error) {
	if f.quoteSearch == nil {
		return "", errDown
	}
	return f.quoteSearch(ctx, symbol)
}

type fakeNSE struct {
	announcements func(ctx context.Context, symbol string) ([]models.FilingRecord, error)
	annualReports func(ctx context.Context, symbol string) ([]models.FilingRecord, error)
}

func (f *fakeNSE) GetAnnouncements(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	if f.announcements == nil {
		return nil, errDown
	}
	return f.announcements(ctx, symbol)
}

func (f *fakeNSE) GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	if f.annualReports == nil {
		return nil, errDown
	}
	return f.annualReports(ctx, symbol)
}

type fakeAgg struct {
	annualReports func(ctx context.Context, symbol string) ([]models.FilingRecord, error)
	concallDocs   func(ctx context.Context, symbol string, category models.Category) ([]models.FilingRecord, error)
	documents     func(ctx context.Context, symbol string) ([]models.FilingRecord, error)
}

func (f *fakeAgg) GetAnnualReports(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	if f.annualReports == nil {
		return nil, errDown
	}
	return f.annualReports(ctx, symbol)
}

func (f *fakeAgg) GetConcallDocs(ctx context.Context, symbol string, category models.Category) ([]models.FilingRecord, error) {
	if f.concallDocs == nil {
		return nil, errDown
	}
	return f.concallDocs(ctx, symbol, category)
}

func (f *fakeAgg) GetDocumentsAPI(ctx context.Context, symbol string) ([]models.FilingRecord, error) {
	if f.documents == nil {
		return nil, errDown
	}
	return f.documents(ctx, symbol)
}

type fakeResolver struct {
	code string
}

func (f *fakeResolver) Resolve(ctx context.Context, symbol string) (string, error) {
	if f.code == "" {
		return "", errDown
	}
	return f.code, nil
}

func (f *fakeResolver) Verify(companyName, symbol string) bool { return true }
func (f *fakeResolver) Evict(symbol string)                    {}

// --- harness ---

type serverDeps struct {
	prices   *fakePrices
	bse      *fakeBSE
	nse      *fakeNSE
	agg      *fakeAgg
	resolver *fakeResolver
	llm      *llm.Client
}

func newTestServer(t *testing.T, deps serverDeps) *httptest.Server {
	t.Helper()

	if deps.prices == nil {
		deps.prices = &fakePrices{}
	}
	if deps.bse == nil {
		deps.bse = &fakeBSE{}
	}
	if deps.nse == nil {
		deps.nse = &fakeNSE{}
	}
	if deps.agg == nil {
		deps.agg = &fakeAgg{}
	}
	if deps.resolver == nil {
		deps.resolver = &fakeResolver{code: "500325"}
	}

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	log := logging.Discard()
	orch := orchestrator.New(deps.resolver, deps.bse, deps.nse, deps.agg, deps.prices, log)
	srv := newServer(&config.Config{}, log, st, orch, docs.New(log, 15, 0), deps.llm)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues a request and decodes the envelope.
func doJSON(t *testing.T, method, url, token string, body interface{}) (int, APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var envelope APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, envelope
}

func asMap(t *testing.T, data interface{}) map[string]interface{} {
	t.Helper()
	m, ok := data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", data)
	}
	return m
}

// registerUser registers a throwaway account and returns its token.
func registerUser(t *testing.T, ts *httptest.Server, username string) string {
	t.Helper()
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "", RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter22",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", username, status, resp.Error)
	}
	token, _ := asMap(t, resp.Data)["token"].(string)
	if token == "" {
		t.Fatal("register returned no token")
	}
	return token
}

// --- tests ---

func TestHealth(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("health: status %d success %v", status, resp.Success)
	}
	if got := asMap(t, resp.Data)["status"]; got != "ok" {
		t.Errorf("status field: got %v, want ok", got)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	token := registerUser(t, ts, "alice")

	// Duplicate username is rejected.
	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/register", "", RegisterRequest{
		Username: "ALICE", Password: "other",
	})
	if status != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", status)
	}

	// Wrong password.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", LoginRequest{
		Username: "alice", Password: "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("bad login: status %d, want 401", status)
	}

	// Correct password issues a fresh token.
	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/login", "", LoginRequest{
		Username: "alice", Password: "hunter22",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d", status)
	}
	loginToken, _ := asMap(t, resp.Data)["token"].(string)
	if loginToken == "" || loginToken == token {
		t.Errorf("login token %q should be a new session", loginToken)
	}

	// /me reflects the session user.
	status, resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/me", loginToken, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status %d", status)
	}
	if got := asMap(t, resp.Data)["username"]; got != "alice" {
		t.Errorf("me username: got %v", got)
	}

	// Logout invalidates the token.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/auth/logout", loginToken, nil)
	if status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/me", loginToken, nil)
	if status != http.StatusUnauthorized {
		t.Errorf("me after logout: status %d, want 401", status)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/watchlist", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", status)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/watchlist", "not-a-session", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("bogus token: status %d, want 401", status)
	}
}

func TestWatchlistEndpoints(t *testing.T) {
	ts := newTestServer(t, serverDeps{})
	token := registerUser(t, ts, "bob")

	for _, sym := range []string{"RELIANCE", "tcs", "INFY"} {
		status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/watchlist", token, WatchlistAddRequest{Symbol: sym})
		if status != http.StatusCreated {
			t.Fatalf("add %s: status %d", sym, status)
		}
	}

	listSymbols := func() []string {
		status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/watchlist", token, nil)
		if status != http.StatusOK {
			t.Fatalf("watchlist: status %d", status)
		}
		raw, _ := asMap(t, resp.Data)["entries"].([]interface{})
		var symbols []string
		for _, e := range raw {
			symbols = append(symbols, e.(map[string]interface{})["symbol"].(string))
		}
		return symbols
	}

	got := listSymbols()
	want := []string{"RELIANCE", "TCS", "INFY"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("insertion order: got %v, want %v", got, want)
	}

	status, _ := doJSON(t, http.MethodPut, ts.URL+"/api/v1/watchlist/order", token, WatchlistOrderRequest{
		Symbols: []string{"INFY", "RELIANCE", "TCS"},
	})
	if status != http.StatusOK {
		t.Fatalf("reorder: status %d", status)
	}
	got = listSymbols()
	want = []string{"INFY", "RELIANCE", "TCS"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("after reorder: got %v, want %v", got, want)
	}

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/watchlist/RELIANCE", token, nil)
	if status != http.StatusOK {
		t.Fatalf("remove: status %d", status)
	}
	got = listSymbols()
	want = []string{"INFY", "TCS"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("after remove: got %v, want %v", got, want)
	}
}

func TestPortfolioEnrichment(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		prices: &fakePrices{
			candle: func(_ context.Context, symbol string) (*models.Quote, error) {
				return &models.Quote{Symbol: symbol, Price: 120, PreviousClose: 110, Source: "Yahoo Finance"}, nil
			},
		},
	})
	token := registerUser(t, ts, "carol")

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/portfolio", token, HoldingRequest{
		Symbol: "RELIANCE", Quantity: 10, BuyPrice: 100,
	})
	if status != http.StatusCreated {
		t.Fatalf("add holding: status %d", status)
	}

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/portfolio", token, nil)
	if status != http.StatusOK {
		t.Fatalf("portfolio: status %d", status)
	}
	data := asMap(t, resp.Data)
	if got := data["invested_value"].(float64); got != 1000 {
		t.Errorf("invested_value: got %v, want 1000", got)
	}
	if got := data["current_value"].(float64); got != 1200 {
		t.Errorf("current_value: got %v, want 1200", got)
	}
	if got := data["profit_loss"].(float64); got != 200 {
		t.Errorf("profit_loss: got %v, want 200", got)
	}
}

func TestPortfolioValidationAndOwnership(t *testing.T) {
	ts := newTestServer(t, serverDeps{})
	token := registerUser(t, ts, "dave")

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/portfolio", token, HoldingRequest{
		Symbol: "RELIANCE", Quantity: 0, BuyPrice: 100,
	})
	if status != http.StatusBadRequest {
		t.Errorf("zero quantity: status %d, want 400", status)
	}

	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/portfolio", token, HoldingRequest{
		Symbol: "RELIANCE", Quantity: 5, BuyPrice: 100,
	})
	if status != http.StatusCreated {
		t.Fatalf("add holding: status %d", status)
	}
	holdingID := asMap(t, resp.Data)["id"].(string)

	// A different user cannot touch it.
	other := registerUser(t, ts, "eve")
	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/v1/portfolio/"+holdingID, other, nil)
	if status != http.StatusNotFound {
		t.Errorf("foreign delete: status %d, want 404", status)
	}

	status, _ = doJSON(t, http.MethodPut, ts.URL+"/api/v1/portfolio/"+holdingID, token, HoldingRequest{
		Quantity: 8, BuyPrice: 95,
	})
	if status != http.StatusOK {
		t.Errorf("update: status %d", status)
	}
}

func TestSearchEndpoint(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		prices: &fakePrices{
			search: func(_ context.Context, query string) ([]models.SymbolSearchResult, error) {
				if query != "tata motors" {
					t.Errorf("query: got %q", query)
				}
				return []models.SymbolSearchResult{
					{Symbol: "TATAMOTORS", Name: "Tata Motors Limited", Exchange: "NSE"},
				}, nil
			},
		},
	})

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/search?q=tata+motors", "", nil)
	if status != http.StatusOK {
		t.Fatalf("search: status %d (%s)", status, resp.Error)
	}
	results := asMap(t, resp.Data)["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("results: got %d", len(results))
	}
	first := results[0].(map[string]interface{})
	if first["symbol"] != "TATAMOTORS" || first["exchange"] != "NSE" {
		t.Errorf("unexpected result %v", first)
	}

	// Missing query is the client's mistake.
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/search", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing q: status %d, want 400", status)
	}
}

func TestSearchEndpointProviderDown(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/search?q=tata", "", nil)
	if status != http.StatusBadGateway {
		t.Errorf("provider down: status %d, want 502", status)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		prices: &fakePrices{
			candle: func(_ context.Context, symbol string) (*models.Quote, error) {
				return &models.Quote{Symbol: symbol, Price: 2855.5, PreviousClose: 2800}, nil
			},
		},
	})

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/quote/reliance", "", nil)
	if status != http.StatusOK {
		t.Fatalf("quote: status %d (%s)", status, resp.Error)
	}
	data := asMap(t, resp.Data)
	if data["symbol"] != "RELIANCE" {
		t.Errorf("symbol: got %v", data["symbol"])
	}
	if data["price"].(float64) != 2855.5 {
		t.Errorf("price: got %v", data["price"])
	}
}

func TestQuoteEndpointUnavailable(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/quote/RELIANCE", "", nil)
	if status != http.StatusBadGateway {
		t.Errorf("all providers down: status %d, want 502", status)
	}
	if resp.Success {
		t.Error("envelope should not report success")
	}
}

func TestPricesBulk(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		prices: &fakePrices{
			candle: func(_ context.Context, symbol string) (*models.Quote, error) {
				if symbol == "INFY" {
					return nil, errDown
				}
				return &models.Quote{Symbol: symbol, Price: 100}, nil
			},
		},
	})

	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/prices", "", PricesRequest{
		Symbols: []string{"RELIANCE", "TCS", "INFY"},
	})
	if status != http.StatusOK {
		t.Fatalf("prices: status %d", status)
	}
	data := asMap(t, resp.Data)
	if len(data) != 2 {
		t.Errorf("got %d quotes, want 2 (INFY down)", len(data))
	}
	if _, ok := data["INFY"]; ok {
		t.Error("failed symbol should be absent from the map")
	}
}

func TestAnnouncementsEndpoint(t *testing.T) {
	published := time.Now().Add(-2 * time.Hour)
	ts := newTestServer(t, serverDeps{
		bse: &fakeBSE{
			announcements: func(_ context.Context, scripCode string, _, _ time.Time) ([]models.FilingRecord, error) {
				return []models.FilingRecord{{
					Title:          "Board Meeting Outcome",
					URL:            "https://www.bseindia.com/x.pdf",
					PublishedDate:  &published,
					SourceProvider: "BSE India",
				}}, nil
			},
		},
	})

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/announcements", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing symbols: status %d, want 400", status)
	}

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/announcements?symbols=RELIANCE", "", nil)
	if status != http.StatusOK {
		t.Fatalf("announcements: status %d", status)
	}
	data := asMap(t, resp.Data)
	items, _ := data["announcements"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("got %d announcements, want 1", len(items))
	}
	first := items[0].(map[string]interface{})
	if first["symbol"] != "RELIANCE" {
		t.Errorf("symbol stamp: got %v", first["symbol"])
	}
	if data["stale"] != false {
		t.Errorf("stale: got %v", data["stale"])
	}
}

func TestBestDocEndpoint(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		bse: &fakeBSE{
			category: func(_ context.Context, _, _ string, _, _ time.Time) ([]models.FilingRecord, error) {
				return []models.FilingRecord{
					{Title: "Annual Report 2024-25", URL: "https://example.com/ar25.pdf"},
					{Title: "Annual Report 2023-24", URL: "https://example.com/ar24.pdf"},
				}, nil
			},
		},
	})

	status, resp := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/docs/RELIANCE?category=annual_report&period=FY2025", "", nil)
	if status != http.StatusOK {
		t.Fatalf("best doc: status %d (%s)", status, resp.Error)
	}
	data := asMap(t, resp.Data)
	doc, ok := data["document"].(map[string]interface{})
	if !ok {
		t.Fatalf("no document in match result: %v", data)
	}
	if doc["title"] != "Annual Report 2024-25" {
		t.Errorf("matched title: got %v", doc["title"])
	}

	// Unknown category is a client error.
	status, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/docs/RELIANCE?category=prospectus", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad category: status %d, want 400", status)
	}
}

func TestAllDocsEndpoint(t *testing.T) {
	ts := newTestServer(t, serverDeps{
		bse: &fakeBSE{
			category: func(_ context.Context, _, _ string, _, _ time.Time) ([]models.FilingRecord, error) {
				return []models.FilingRecord{
					{Title: "Annual Report 2024-25", URL: "https://example.com/ar25.pdf"},
				}, nil
			},
		},
	})

	status, resp := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/docs/RELIANCE/all?category=annual_report", "", nil)
	if status != http.StatusOK {
		t.Fatalf("all docs: status %d", status)
	}
	items, _ := resp.Data.([]interface{})
	if len(items) != 1 {
		t.Fatalf("got %d records, want 1", len(items))
	}
}

func TestAllDocsNoFilings(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, _ := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/docs/RELIANCE/all?category=transcript", "", nil)
	if status != http.StatusNotFound {
		t.Errorf("no filings: status %d, want 404", status)
	}
}

func TestExtractRequiresURL(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/docs/extract", "", ExtractRequest{})
	if status != http.StatusBadRequest {
		t.Errorf("missing url: status %d, want 400", status)
	}
}

func TestAskNotConfigured(t *testing.T) {
	ts := newTestServer(t, serverDeps{})

	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{Question: "hello"})
	if status != http.StatusServiceUnavailable {
		t.Errorf("no llm: status %d, want 503", status)
	}
	if resp.Success {
		t.Error("envelope should not report success")
	}
}

func TestAskEndpoint(t *testing.T) {
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Revenue grew 12%."}]},"finishReason":"STOP"}]}`)
	}))
	defer gemini.Close()

	log := logging.Discard()
	ask, err := llm.New("test-key", log, llm.WithBaseURL(gemini.URL))
	if err != nil {
		t.Fatalf("llm.New: %v", err)
	}

	ts := newTestServer(t, serverDeps{llm: ask})

	status, resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{
		Question: "How did revenue do?",
		History:  []ChatMessage{{Role: "user", Content: "context setting"}},
	})
	if status != http.StatusOK {
		t.Fatalf("ask: status %d (%s)", status, resp.Error)
	}
	if got := asMap(t, resp.Data)["answer"]; got != "Revenue grew 12%." {
		t.Errorf("answer: got %v", got)
	}

	// Empty question is rejected before any model call.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{})
	if status != http.StatusBadRequest {
		t.Errorf("empty question: status %d, want 400", status)
	}
}

func TestAskBadCategoryVsMissingDoc(t *testing.T) {
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	}))
	defer gemini.Close()

	log := logging.Discard()
	ask, err := llm.New("test-key", log, llm.WithBaseURL(gemini.URL))
	if err != nil {
		t.Fatalf("llm.New: %v", err)
	}

	ts := newTestServer(t, serverDeps{llm: ask})

	// An unknown category is a malformed request, not a failed lookup.
	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{
		Question: "What changed?",
		Symbol:   "RELIANCE",
		Category: "prospectus",
	})
	if status != http.StatusBadRequest {
		t.Errorf("bad category: status %d, want 400", status)
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{
		Question: "What changed?",
		Symbol:   "RELIANCE",
		Category: "transcript",
		Period:   "not-a-period",
	})
	if status != http.StatusBadRequest {
		t.Errorf("bad period: status %d, want 400", status)
	}

	// A well-formed request whose filing lookup comes up empty is a 404.
	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ask", "", AskRequest{
		Question: "What changed?",
		Symbol:   "RELIANCE",
		Category: "transcript",
	})
	if status != http.StatusNotFound {
		t.Errorf("no filings: status %d, want 404", status)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in      string
		want    models.Category
		wantErr bool
	}{
		{"annual_report", models.CategoryAnnualReport, false},
		{"ANNUAL", models.CategoryAnnualReport, false},
		{"transcript", models.CategoryTranscript, false},
		{"concall", models.CategoryTranscript, false},
		{"ppt", models.CategoryPresentation, false},
		{"", "", true},
		{"prospectus", "", true},
	}
	for _, tc := range cases {
		got, err := parseCategory(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("parseCategory(%q): err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
