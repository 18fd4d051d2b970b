// scripdesk is a multi-source filing and price resolution CLI for Indian equities.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/seenimoa/scripdesk/api"
	"github.com/seenimoa/scripdesk/internal/config"
	"github.com/seenimoa/scripdesk/internal/datasource"
	"github.com/seenimoa/scripdesk/internal/docs"
	"github.com/seenimoa/scripdesk/internal/fiscal"
	"github.com/seenimoa/scripdesk/internal/llm"
	"github.com/seenimoa/scripdesk/internal/logging"
	"github.com/seenimoa/scripdesk/internal/orchestrator"
	"github.com/seenimoa/scripdesk/internal/resolver"
	"github.com/seenimoa/scripdesk/internal/store"
	"github.com/seenimoa/scripdesk/pkg/models"
	"github.com/seenimoa/scripdesk/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, populated by PersistentPreRunE.
var (
	cfg *config.Config
	log *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scripdesk",
	Short: "scripdesk — filings, prices, and announcements for Indian equities",
	Long: `scripdesk resolves NSE symbols to BSE scrip codes and chases annual
reports, earnings call transcripts, investor presentations, prices, and
corporate announcements across BSE, NSE, Screener.in, and Yahoo Finance,
falling through providers until one answers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		log = logging.New(level, cfg.Logging.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(announcementsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
}

// engine bundles the wired components for one-shot CLI commands.
// The caller must Close the store.
type engine struct {
	orch     *orchestrator.Orchestrator
	resolver *resolver.Resolver
	store    *store.Store
}

func buildEngine() (*engine, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sessionTTL := time.Duration(cfg.Providers.SessionTTLSec) * time.Second
	bse := datasource.NewBSE()
	nse := datasource.NewNSE(datasource.NewSession("https://www.nseindia.com", sessionTTL))
	scr := datasource.NewScreener()
	yahoo := datasource.NewYahoo()

	res := resolver.New(bse, nse, st, log,
		resolver.WithStrategyTimeout(time.Duration(cfg.Providers.SearchTimeoutSec)*time.Second))
	orch := orchestrator.New(res, bse, nse, scr, yahoo, log,
		orchestrator.WithStepTimeout(time.Duration(cfg.Providers.ListTimeoutSec)*time.Second),
		orchestrator.WithAnnouncementLimit(cfg.Providers.AnnouncementsLimit))
	return &engine{
		orch:     orch,
		resolver: res,
		store:    st,
	}, nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scripdesk %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := api.NewServer(cfg, log)
		if err != nil {
			return err
		}
		defer srv.Close()

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("🌐 scripdesk API listening on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Resolve Command ---

var resolveCmd = &cobra.Command{
	Use:   "resolve [symbol]",
	Short: "Resolve an NSE symbol to its BSE scrip code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		symbol := utils.NormalizeSymbol(args[0])

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		code, err := eng.resolver.Resolve(ctx, symbol)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", symbol, err)
		}

		fmt.Printf("%s → BSE scrip code %s\n", symbol, code)
		return nil
	},
}

// --- Search Command ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search NSE/BSE listings by company name or symbol",
	Long: `Search Indian listings by free text. Useful for finding the exact
symbol before adding it to a watchlist.

Example:
  scripdesk search "tata motors"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		results, err := eng.orch.SearchSymbols(ctx, args[0])
		if err != nil {
			return fmt.Errorf("search %q: %w", args[0], err)
		}
		if len(results) == 0 {
			fmt.Println("No NSE/BSE listings matched.")
			return nil
		}

		fmt.Printf("%-14s %-5s %s\n", "SYMBOL", "EXCH", "NAME")
		for _, r := range results {
			fmt.Printf("%-14s %-5s %s\n", r.Symbol, r.Exchange, r.Name)
		}
		return nil
	},
}

// --- Price Command ---

var priceCmd = &cobra.Command{
	Use:   "price [symbol...]",
	Short: "Fetch live quotes for one or more symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		quotes := eng.orch.ResolvePrices(ctx, args)

		fmt.Printf("%-12s %14s %10s %12s  %s\n", "SYMBOL", "PRICE", "CHANGE", "VOLUME", "SOURCE")
		for _, sym := range args {
			sym = utils.NormalizeSymbol(sym)
			q := quotes[sym]
			if q == nil {
				fmt.Printf("%-12s %14s\n", sym, "unavailable")
				continue
			}
			fmt.Printf("%-12s %14s %10s %12s  %s\n",
				sym, utils.FormatINR(q.Price), utils.FormatPct(q.ChangePercent),
				utils.FormatVolume(q.Volume), q.Source)
		}
		return nil
	},
}

// --- Docs Command ---

var docsCmd = &cobra.Command{
	Use:   "docs [symbol] [category]",
	Short: "Find a filing document (annual_report, transcript, presentation)",
	Long: `Find the best-matching filing for a symbol, category, and period.

Examples:
  scripdesk docs RELIANCE annual_report --period FY2025
  scripdesk docs TCS transcript --period Q3FY25
  scripdesk docs INFY presentation --all`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		symbol := utils.NormalizeSymbol(args[0])
		category, err := parseCategoryArg(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Minute)
		defer cancel()

		if all, _ := cmd.Flags().GetBool("all"); all {
			records, err := eng.orch.ResolveFilings(ctx, symbol, category)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Printf("• %s\n  %s\n", rec.Title, rec.URL)
			}
			return nil
		}

		period, err := parsePeriodFlag(cmd)
		if err != nil {
			return err
		}

		result, err := eng.orch.ResolveBestFiling(ctx, symbol, category, period)
		if err != nil {
			return err
		}
		if result.Document == nil {
			fmt.Printf("No confident %s match for %s %s (best score %d).\n",
				category, symbol, period, result.Confidence)
			printCandidates(result.Candidates)
			return nil
		}

		fmt.Printf("📄 %s (confidence %d)\n   %s\n", result.Document.Title, result.Confidence, result.Document.URL)
		return nil
	},
}

func init() {
	docsCmd.Flags().String("period", "", "fiscal period, e.g. FY2025 or Q3FY25 (default: current FY)")
	docsCmd.Flags().Bool("all", false, "list every filing instead of matching a period")
}

// --- Announcements Command ---

var announcementsCmd = &cobra.Command{
	Use:   "announcements [symbol...]",
	Short: "Show recent corporate announcements",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Minute)
		defer cancel()

		batch, err := eng.orch.ResolveAnnouncements(ctx, args)
		if err != nil {
			return err
		}
		if batch.Stale {
			fmt.Println("⚠️  live providers returned nothing; showing last known results")
		}
		for _, a := range batch.Announcements {
			when := a.RawDate
			if a.HasDate() {
				when = a.Timestamp().Format("02-Jan-2006 15:04")
			}
			fmt.Printf("• [%s] %s — %s\n  %s\n", a.Symbol, a.Title, when, a.URL)
		}
		return nil
	},
}

// --- Ask Command ---

var askCmd = &cobra.Command{
	Use:   "ask [symbol] [category] [question]",
	Short: "Ask a question about a filing document",
	Long: `Locate the best-matching filing, extract its text, and answer a
question about it with Gemini.

Example:
  scripdesk ask RELIANCE annual_report "How did consolidated revenue change?" --period FY2025`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LLM.GeminiKey == "" {
			return fmt.Errorf("no Gemini API key configured; set SCRIPDESK_LLM_GEMINI_KEY")
		}

		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.store.Close()

		symbol := utils.NormalizeSymbol(args[0])
		category, err := parseCategoryArg(args[1])
		if err != nil {
			return err
		}
		question := args[2]

		period, err := parsePeriodFlag(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		result, err := eng.orch.ResolveBestFiling(ctx, symbol, category, period)
		if err != nil {
			return err
		}
		if result.Document == nil {
			return fmt.Errorf("no confident %s match for %s %s", category, symbol, period)
		}
		fmt.Printf("📄 %s\n", result.Document.Title)

		fetchTimeout := time.Duration(cfg.Docs.FetchTimeoutSec) * time.Second
		text, err := docs.New(log, cfg.Docs.MaxPages, fetchTimeout).FetchText(ctx, result.Document)
		if err != nil {
			return fmt.Errorf("extract document text: %w", err)
		}

		client, err := llm.New(cfg.LLM.GeminiKey, log, llm.WithModel(cfg.LLM.Model))
		if err != nil {
			return err
		}

		ch, err := client.AskStream(ctx, question, text, nil)
		if err != nil {
			return err
		}
		for chunk := range ch {
			if chunk.Err != nil {
				return chunk.Err
			}
			fmt.Print(chunk.Text)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	askCmd.Flags().String("period", "", "fiscal period, e.g. FY2025 or Q3FY25 (default: current FY)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  scripdesk — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", marketStatus())
		fmt.Printf("  Time (IST):    %s\n", utils.NowIST().Format("02-Jan-2006 15:04:05"))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Store Path:    %s\n", cfg.Store.Path)
		fmt.Printf("    LLM Model:     %s\n", cfg.LLM.Model)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-18s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

// --- Helpers ---

func marketStatus() string {
	if utils.IsMarketOpen() {
		return "open"
	}
	return "closed"
}

func parseCategoryArg(raw string) (models.Category, error) {
	switch strings.ToLower(raw) {
	case "annual_report", "annual", "ar":
		return models.CategoryAnnualReport, nil
	case "transcript", "concall":
		return models.CategoryTranscript, nil
	case "presentation", "ppt":
		return models.CategoryPresentation, nil
	default:
		return "", fmt.Errorf("unknown category %q (want annual_report, transcript, or presentation)", raw)
	}
}

func parsePeriodFlag(cmd *cobra.Command) (fiscal.PeriodQuery, error) {
	raw, _ := cmd.Flags().GetString("period")
	if raw == "" {
		return fiscal.PeriodQuery{Year: fiscal.CurrentFiscalYear(utils.NowIST())}, nil
	}
	return fiscal.ParsePeriod(raw)
}

func printCandidates(candidates []models.FilingRecord) {
	if len(candidates) == 0 {
		return
	}
	fmt.Println("Candidates:")
	limit := len(candidates)
	if limit > 10 {
		limit = 10
	}
	for _, c := range candidates[:limit] {
		fmt.Printf("  • %s\n", c.Title)
	}
}
