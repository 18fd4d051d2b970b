package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/internal/llm"
	"github.com/seenimoa/scripdesk/internal/orchestrator"
	"github.com/seenimoa/scripdesk/internal/store"
	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// ============================================================
// Market data
// ============================================================

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	results, err := s.orch.SearchSymbols(ctx, query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"results": results},
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	quote, err := s.orch.ResolvePrice(ctx, utils.NormalizeSymbol(symbol))
	if err != nil {
		if errors.Is(err, orchestrator.ErrPriceUnavailable) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    quote,
	})
}

// PricesRequest is the body for POST /api/v1/prices.
type PricesRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var req PricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.orch.ResolvePrices(ctx, req.Symbols),
	})
}

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}

	var symbols []string
	for _, sym := range strings.Split(raw, ",") {
		if sym = strings.TrimSpace(sym); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	batch, err := s.orch.ResolveAnnouncements(ctx, symbols)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    batch,
	})
}

// ============================================================
// Documents
// ============================================================

func (s *Server) handleBestDoc(w http.ResponseWriter, r *http.Request) {
	symbol := utils.NormalizeSymbol(chi.URLParam(r, "symbol"))

	category, err := parseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	period, err := parsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	result, err := s.orch.ResolveBestFiling(ctx, symbol, category, period)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoFilings) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    result,
	})
}

func (s *Server) handleAllDocs(w http.ResponseWriter, r *http.Request) {
	symbol := utils.NormalizeSymbol(chi.URLParam(r, "symbol"))

	category, err := parseCategory(r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
	defer cancel()

	records, err := s.orch.ResolveFilings(ctx, symbol, category)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoFilings) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    records,
	})
}

// ExtractRequest is the body for POST /api/v1/docs/extract.
type ExtractRequest struct {
	URL           string   `json:"url"`
	AlternateURLs []string `json:"alternate_urls,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	rec := &models.FilingRecord{URL: req.URL, AlternateURLs: req.AlternateURLs}
	text, err := s.docs.FetchText(ctx, rec)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"url":  req.URL,
			"text": text,
		},
	})
}

// ============================================================
// Document Q&A
// ============================================================

// ChatMessage is a single prior conversation turn.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// AskRequest is the body for POST /api/v1/ask. When Symbol and Category
// are set the best-matching filing is fetched and its text supplied to
// the model as context.
type AskRequest struct {
	Question string        `json:"question"`
	Symbol   string        `json:"symbol,omitempty"`
	Category string        `json:"category,omitempty"`
	Period   string        `json:"period,omitempty"`
	History  []ChatMessage `json:"history,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM is not configured; set a Gemini API key")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx := r.Context()

	var contextText string
	if req.Symbol != "" && req.Category != "" {
		// Malformed category or period values are the client's mistake,
		// not a failed document lookup.
		category, err := parseCategory(req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		period, err := parsePeriod(req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		contextText, err = s.askContext(ctx, utils.NormalizeSymbol(req.Symbol), category, period)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	}

	prior := make([]llm.Message, 0, len(req.History))
	for _, m := range req.History {
		prior = append(prior, llm.Message{Role: m.Role, Content: m.Content})
	}

	if req.Stream {
		s.streamAnswer(w, r, req.Question, contextText, prior)
		return
	}

	answer, err := s.llm.Ask(ctx, req.Question, contextText, prior)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimit) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"answer": answer,
		},
	})
}

// askContext locates and extracts the document a question is about.
func (s *Server) askContext(ctx context.Context, symbol string, category models.Category, period fiscal.PeriodQuery) (string, error) {
	result, err := s.orch.ResolveBestFiling(ctx, symbol, category, period)
	if err != nil {
		return "", err
	}
	if result.Document == nil {
		return "", fmt.Errorf("no confident %s match for %s %s", category, symbol, period)
	}

	return s.docs.FetchText(ctx, result.Document)
}

// streamAnswer relays model chunks as server-sent events.
func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, question, contextText string, prior []llm.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, err := s.llm.AskStream(r.Context(), question, contextText, prior)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	enc := func(v interface{}) {
		data, _ := json.Marshal(v)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for chunk := range ch {
		if chunk.Err != nil {
			enc(map[string]string{"error": chunk.Err.Error()})
			return
		}
		enc(map[string]interface{}{"text": chunk.Text, "done": chunk.Done})
		if chunk.Done {
			return
		}
	}
	enc(map[string]interface{}{"done": true})
}

// ============================================================
// Watchlist
// ============================================================

// WatchlistAddRequest is the body for POST /api/v1/watchlist.
type WatchlistAddRequest struct {
	Symbol string `json:"symbol"`
}

// WatchlistOrderRequest is the body for PUT /api/v1/watchlist/order.
type WatchlistOrderRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	entries, err := s.store.Watchlist(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := map[string]interface{}{"entries": entries}

	if r.URL.Query().Get("quotes") == "true" && len(entries) > 0 {
		symbols := make([]string, len(entries))
		for i, e := range entries {
			symbols[i] = e.Symbol
		}
		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()
		data["quotes"] = s.orch.ResolvePrices(ctx, symbols)
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req WatchlistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	entry, err := s.store.AddToWatchlist(user.ID, req.Symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    entry,
	})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	symbol := chi.URLParam(r, "symbol")
	if err := s.store.RemoveFromWatchlist(user.ID, symbol); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"removed": utils.NormalizeSymbol(symbol)},
	})
}

func (s *Server) handleWatchlistReorder(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req WatchlistOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols are required")
		return
	}

	if err := s.store.ReorderWatchlist(user.ID, req.Symbols); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries, err := s.store.Watchlist(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]interface{}{"entries": entries},
	})
}

// ============================================================
// Portfolio
// ============================================================

// HoldingRequest is the body for POST and PUT portfolio endpoints.
type HoldingRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	BuyPrice float64 `json:"buy_price"`
	BuyDate  string  `json:"buy_date,omitempty"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	holdings, err := s.store.Holdings(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}

	var quotes map[string]*models.Quote
	if len(symbols) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()
		quotes = s.orch.ResolvePrices(ctx, symbols)
	}

	views := make([]models.HoldingView, len(holdings))
	var invested, current float64
	for i, h := range holdings {
		view := models.HoldingView{Holding: h}
		var price float64
		if q := quotes[utils.NormalizeSymbol(h.Symbol)]; q != nil {
			price = q.Price
		}
		view.Enrich(price)
		views[i] = view
		invested += view.InvestedValue
		current += view.CurrentValue
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"holdings":       views,
			"invested_value": invested,
			"current_value":  current,
			"profit_loss":    current - invested,
		},
	})
}

func (s *Server) handlePortfolioAdd(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	holding, err := s.store.AddHolding(user.ID, req.Symbol, req.Quantity, req.BuyPrice, req.BuyDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    holding,
	})
}

func (s *Server) handlePortfolioUpdate(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := chi.URLParam(r, "id")

	var req HoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	holding, err := s.store.UpdateHolding(user.ID, id, req.Quantity, req.BuyPrice)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "holding not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    holding,
	})
}

func (s *Server) handlePortfolioRemove(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id := chi.URLParam(r, "id")

	if err := s.store.RemoveHolding(user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "holding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]string{"deleted": id},
	})
}

// ============================================================
// Param parsing
// ============================================================

func parseCategory(raw string) (models.Category, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "annual_report", "annual", "ar":
		return models.CategoryAnnualReport, nil
	case "transcript", "concall":
		return models.CategoryTranscript, nil
	case "presentation", "ppt":
		return models.CategoryPresentation, nil
	case "":
		return "", fmt.Errorf("category is required (annual_report, transcript, presentation)")
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// parsePeriod parses the period query parameter, defaulting to the
// current fiscal year when absent.
func parsePeriod(raw string) (fiscal.PeriodQuery, error) {
	if strings.TrimSpace(raw) == "" {
		return fiscal.PeriodQuery{Year: fiscal.CurrentFiscalYear(utils.NowIST())}, nil
	}
	return fiscal.ParsePeriod(raw)
}
