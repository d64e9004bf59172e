// Inspector prints what the next cycle would do without placing anything.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/GoPolymarket/polylend/internal/app"
	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/pkg/logger"
	"github.com/shopspring/decimal"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	strategyName := flag.String("strategy", "", "override strategy.name")
	from := flag.String("from", "", "print daily summaries from this date (YYYY-MM-DD)")
	to := flag.String("to", "", "summaries end date, default today")
	flag.Parse()

	cfg, err := config.Load(*configDir, *configDir+"/configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *strategyName != "" {
		cfg.Strategy.Name = *strategyName
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger.Init("warn", "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	engine, err := app.New(ctx, cfg, app.Options{ReadOnly: true})
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer engine.Close()

	if *from != "" {
		if err := printSummaries(ctx, engine, *from, *to); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := dryRun(ctx, engine); err != nil {
		log.Fatal(err)
	}
}

func dryRun(ctx context.Context, a *app.App) error {
	ccy := a.Config.Trading.Currency

	bal, err := a.Gateway.Balance(ctx, ccy)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	snap, err := a.Market.Snapshot(ctx, ccy)
	if err != nil {
		return fmt.Errorf("market: %w", err)
	}

	capital := bal.Available.Sub(a.RiskGate.Limits().MinReserve)
	if capital.IsNegative() {
		capital = decimal.Zero
	}
	proposal := a.Strategy.Propose(capital, snap)
	decision := a.RiskGate.Evaluate(model.ExposureFromBalance(bal), proposal)

	return printJSON(map[string]any{
		"currency": ccy,
		"strategy": a.Strategy.Name(),
		"balance":  bal,
		"capital":  capital,
		"quote":    snap.Quote(a.Config.Trading.Period),
		"frr":      snap.FRR,
		"proposal": proposal,
		"decision": decision,
	})
}

func printSummaries(ctx context.Context, a *app.App, fromRaw, toRaw string) error {
	from, err := model.ParseDay(fromRaw)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to := model.Day(time.Now())
	if toRaw != "" {
		if to, err = model.ParseDay(toRaw); err != nil {
			return fmt.Errorf("-to: %w", err)
		}
	}
	sums, err := a.Store.ListSummaries(ctx, a.Config.Trading.Currency, from, to)
	if err != nil {
		return err
	}
	return printJSON(sums)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
