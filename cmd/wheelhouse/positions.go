package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwaldner/wheelhouse/internal/journal"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/portfolio"
)

const dateLayout = "2006-01-02"

func newPositionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "positions",
		Short: "Manage the portfolio file",
	}
	cmd.AddCommand(newPositionsListCmd(), newPositionsAddCmd(), newPositionsCloseCmd(), newStockAddCmd())
	return cmd
}

func newPositionsListCmd() *cobra.Command {
	var closed bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open (or closed) option positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := portfolio.NewStore(cfg.Portfolio.File)
			list := store.ListOpenPositions
			if closed {
				list = store.ListClosedPositions
			}
			positions, err := list(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(positions)
			}
			printPositions(positions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&closed, "closed", false, "list closed positions")
	return cmd
}

func newPositionsAddCmd() *cobra.Command {
	var (
		p          models.HeldPosition
		optionType string
		strategy   string
		expiration string
		entryDate  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a newly sold option",
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Ticker = strings.ToUpper(strings.TrimSpace(p.Ticker))
			p.Type = models.OptionType(strings.ToLower(optionType))
			p.Strategy = models.Strategy(strings.ToLower(strategy))

			exp, err := time.Parse(dateLayout, expiration)
			if err != nil {
				return fmt.Errorf("invalid --expiration: %w", err)
			}
			p.Expiration = exp
			if entryDate != "" {
				if p.EntryDate, err = time.Parse(dateLayout, entryDate); err != nil {
					return fmt.Errorf("invalid --entry-date: %w", err)
				}
			}

			saved, err := portfolio.NewStore(cfg.Portfolio.File).AddOption(cmd.Context(), p)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(saved)
			}
			fmt.Printf("✅ Added %s %s %s %.2f x%d (id %s)\n", saved.Strategy, saved.Ticker, saved.Type, saved.Strike, saved.Contracts, saved.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.Ticker, "ticker", "", "underlying ticker")
	f.StringVar(&optionType, "type", "put", "put or call")
	f.Float64Var(&p.Strike, "strike", 0, "strike price")
	f.StringVar(&expiration, "expiration", "", "expiration date YYYY-MM-DD")
	f.IntVar(&p.Contracts, "contracts", 1, "number of contracts")
	f.Float64Var(&p.EntryPremium, "premium", 0, "premium collected per share")
	f.StringVar(&strategy, "strategy", "", "csp, cc or wheel (default from type)")
	f.StringVar(&entryDate, "entry-date", "", "entry date YYYY-MM-DD (default today)")
	f.StringVar(&p.Notes, "notes", "", "free text")
	_ = cmd.MarkFlagRequired("ticker")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiration")
	_ = cmd.MarkFlagRequired("premium")
	return cmd
}

func newPositionsCloseCmd() *cobra.Command {
	var (
		premium float64
		outcome string
		date    string
	)
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a position and record realized P&L",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closedAt := time.Now()
			if date != "" {
				var err error
				if closedAt, err = time.Parse(dateLayout, date); err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			p, err := portfolio.NewStore(cfg.Portfolio.File).ClosePosition(cmd.Context(), args[0], premium, models.Outcome(outcome), closedAt)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(p)
			}
			fmt.Printf("✅ Closed %s %s %.2f: realized P&L $%.2f\n", p.Ticker, p.Type, p.Strike, *p.RealizedPnL)
			return nil
		},
	}
	cmd.Flags().Float64Var(&premium, "premium", 0, "buy-back price per share (0 when expired)")
	cmd.Flags().StringVar(&outcome, "outcome", string(models.OutcomeBoughtBack), "expired, assigned or bought_back")
	cmd.Flags().StringVar(&date, "date", "", "close date YYYY-MM-DD (default today)")
	return cmd
}

func newStockAddCmd() *cobra.Command {
	var (
		lot      models.StockPosition
		acquired string
	)
	cmd := &cobra.Command{
		Use:   "add-stock",
		Short: "Record shares that can back covered calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			lot.Ticker = strings.ToUpper(strings.TrimSpace(lot.Ticker))
			lot.Acquired = time.Now()
			if acquired != "" {
				var err error
				if lot.Acquired, err = time.Parse(dateLayout, acquired); err != nil {
					return fmt.Errorf("invalid --acquired: %w", err)
				}
			}
			if err := portfolio.NewStore(cfg.Portfolio.File).AddStock(cmd.Context(), lot); err != nil {
				return err
			}
			fmt.Printf("✅ Added %d %s shares at %.2f\n", lot.Shares, lot.Ticker, lot.CostBasis)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&lot.Ticker, "ticker", "", "ticker")
	f.IntVar(&lot.Shares, "shares", 100, "share count")
	f.Float64Var(&lot.CostBasis, "cost-basis", 0, "cost per share")
	f.StringVar(&acquired, "acquired", "", "acquisition date YYYY-MM-DD (default today)")
	f.StringVar(&lot.Notes, "notes", "", "free text")
	_ = cmd.MarkFlagRequired("ticker")
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect saved scan and review runs",
	}

	var strategy string
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(cfg.Journal.Dir, cfg.Journal.FilenameFormat)
			if err != nil {
				return err
			}
			defer j.Close()
			entries, err := j.List(models.Strategy(strategy))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(entries)
			}
			printEntries(entries)
			return nil
		},
	}
	list.Flags().StringVar(&strategy, "strategy", "", "only runs of this strategy (csp, cc, wheel, review)")

	var latestStrategy string
	latest := &cobra.Command{
		Use:   "latest",
		Short: "Print the newest run as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(cfg.Journal.Dir, cfg.Journal.FilenameFormat)
			if err != nil {
				return err
			}
			defer j.Close()
			run, err := j.LoadLatest(models.Strategy(latestStrategy))
			if err != nil {
				return err
			}
			return printJSON(run)
		},
	}
	latest.Flags().StringVar(&latestStrategy, "strategy", "", "only runs of this strategy")

	var keepDays int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete runs older than --keep-days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("keep-days") {
				keepDays = cfg.Journal.KeepDays
			}
			j, err := journal.Open(cfg.Journal.Dir, cfg.Journal.FilenameFormat)
			if err != nil {
				return err
			}
			defer j.Close()
			n, err := j.Cleanup(cmd.Context(), keepDays)
			if err != nil {
				return err
			}
			fmt.Printf("🧹 Removed %d runs older than %d days\n", n, keepDays)
			return nil
		},
	}
	cleanup.Flags().IntVar(&keepDays, "keep-days", 0, "age limit in days (default from config)")

	cmd.AddCommand(list, latest, cleanup)
	return cmd
}
