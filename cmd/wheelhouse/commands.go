package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwaldner/wheelhouse/internal/handlers"
	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/scanner"
	"github.com/jwaldner/wheelhouse/internal/services"
	"github.com/jwaldner/wheelhouse/internal/utils"
)

func newScanCmd() *cobra.Command {
	var (
		strategy string
		tickers  []string
		preset   string
		topN     int
		cash     float64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Rank option sale opportunities across a watchlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			strat, err := services.ParseStrategy(strategy)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			// covered calls default to the tickers held shares can cover
			var symbols []string
			if strat != models.StrategyCC || len(tickers) > 0 || preset != "" {
				sel, err := a.watchlist.Resolve(tickers, preset)
				if err != nil {
					return err
				}
				symbols = sel.Tickers
				logger.Info.Printf("📋 Tickers: %s", sel.Source)
			}

			var opts scanner.Options
			if cmd.Flags().Changed("cash") {
				opts.AvailableCash = &cash
			}

			var report scanner.Report
			s := cfg.Settings
			switch strat {
			case models.StrategyCSP:
				p := s.CSP
				if topN >= 0 {
					p.TopN = topN
				}
				report, err = a.scanner.ScanCSP(ctx, symbols, p, opts)
			case models.StrategyWheel:
				p := s.Wheel
				if topN >= 0 {
					p.TopN = topN
				}
				report, err = a.scanner.ScanWheel(ctx, symbols, p, opts)
			case models.StrategyCC:
				p := s.CoveredCall
				if topN >= 0 {
					p.TopN = topN
				}
				report, err = a.scanner.ScanCoveredCalls(ctx, symbols, p, opts)
			}
			if err != nil {
				return err
			}

			a.record(ctx, report.JournalRun())
			if asJSON {
				return printJSON(report)
			}
			printReport(report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "csp", "csp, cc or wheel")
	cmd.Flags().StringSliceVarP(&tickers, "tickers", "t", nil, "comma separated tickers")
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "watchlist preset ("+strings.Join(services.Presets(), ", ")+")")
	cmd.Flags().IntVarP(&topN, "top", "n", -1, "results to keep (default from config, 0 keeps all)")
	cmd.Flags().Float64Var(&cash, "cash", 0, "available cash for sizing (default from config, 0 disables sizing)")
	return cmd
}

func newReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Recommend an action for every open position",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			recs, err := a.scanner.ReviewPositions(cmd.Context())
			if err != nil {
				return err
			}
			if len(recs) > 0 {
				a.record(cmd.Context(), scanner.ReviewRun(recs, time.Now()))
			}
			if asJSON {
				return printJSON(recs)
			}
			printRecommendations(recs)
			return nil
		},
	}
}

func newCapitalCmd() *cobra.Command {
	var strikes []float64

	cmd := &cobra.Command{
		Use:   "capital",
		Short: "Show deployed and available capital",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			summary, decision, err := a.scanner.Capital(cmd.Context())
			if err != nil {
				return err
			}
			contracts, err := a.scanner.ContractCapacity(cmd.Context(), strikes)
			if err != nil {
				return err
			}
			if asJSON {
				out := map[string]interface{}{"summary": summary, "capacity": decision}
				if len(strikes) > 0 {
					out["contracts"] = strikeCapacity(strikes, contracts)
				}
				return printJSON(out)
			}
			printCapital(summary, decision)
			printContractCapacity(strikes, contracts)
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&strikes, "strike", nil, "strike prices to size cash-secured contracts for")
	return cmd
}

func newMarketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show the US equity market session",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			status, message := utils.GetMarketStatus(now)
			if asJSON {
				return printJSON(map[string]interface{}{"status": status, "message": message, "is_open": utils.IsMarketOpen(now)})
			}
			fmt.Printf("%s  %s\n", status, message)
			fmt.Printf("Next monthly expiration: %s\n", utils.NextMonthlyExpiration(now).Format("2006-01-02"))
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = cfg.Port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var rec handlers.Recorder
			if a.journal != nil {
				rec = a.journal
				if cfg.Journal.KeepDays > 0 {
					if n, err := a.journal.Cleanup(ctx, cfg.Journal.KeepDays); err != nil {
						logger.Warn.Printf("⚠️  journal cleanup: %v", err)
					} else if n > 0 {
						logger.Info.Printf("🧹 Removed %d journal runs older than %d days", n, cfg.Journal.KeepDays)
					}
				}
			}

			h := handlers.NewOptionsHandler(a.scanner, a.watchlist, cfg.Settings, rec, a.manager)
			srv := &http.Server{
				Addr:              "0.0.0.0:" + port,
				Handler:           handlers.NewRouter(h),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Always("🌐 Server starting on http://localhost:%s", port)
				fmt.Printf("🌐 Server starting on http://localhost:%s\n", port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info.Printf("🛑 Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default from config)")
	return cmd
}
