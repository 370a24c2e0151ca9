package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	grpcadapter "github.com/matviysuk/btcwallet-backend/internal/adapter/grpc"
	"github.com/matviysuk/btcwallet-backend/internal/domain"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/analytics"
	"github.com/matviysuk/btcwallet-backend/internal/usecase/valuation"
)

const callTimeout = 10 * time.Second

var (
	addrFlag  = flag.String("addr", envOr("WALLET_ADDR", "localhost:8080"), "address of the wallet daemon")
	tokenFlag = flag.String("token", envOr("API_TOKEN", "dev-token"), "API token sent as authorization metadata")
)

var commands = []subcommands.Command{
	&addCmd{},
	&listCmd{},
	&balanceCmd{},
	&rateCmd{},
	&watchCmd{},
	&valuationCmd{},
	&eventsCmd{},
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// withClient dials the daemon, runs fn and maps its error to an exit status
func withClient(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, c *grpcadapter.Client) error) subcommands.ExitStatus {
	client, err := grpcadapter.Dial(*addrFlag, *tokenFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer client.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := fn(ctx, client); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type addCmd struct {
	amount   string
	category string
	at       string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an income or an expense" }
func (*addCmd) Usage() string {
	return `walletctl add -amount <btc> [-category <name>] [-at <RFC3339 time>]

  Without -category the amount is recorded as income. With -category the
  amount is recorded as an expense of that magnitude. Categories: ` + categoryNames() + `
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.amount, "amount", "", "Amount in BTC.")
	f.StringVar(&c.category, "category", "", "Expense category; omit for income.")
	f.StringVar(&c.at, "at", "", "Transaction time (defaults to now on the server).")
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	input, timestamp, err := c.input()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		record, err := client.SaveTransaction(ctx, input, timestamp)
		if err != nil {
			return err
		}
		fmt.Printf("saved %s\n", formatRecord(record))
		return nil
	})
}

func (c *addCmd) input() (domain.InputTransaction, *time.Time, error) {
	if c.amount == "" {
		return domain.InputTransaction{}, nil, fmt.Errorf("-amount is required")
	}
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return domain.InputTransaction{}, nil, fmt.Errorf("invalid amount %q: %w", c.amount, err)
	}

	input := domain.NewIncome(amount)
	if c.category != "" {
		category, err := domain.ParseCategory(c.category)
		if err != nil {
			return domain.InputTransaction{}, nil, err
		}
		input = domain.NewExpense(amount, category)
	}

	if c.at == "" {
		return input, nil, nil
	}
	ts, err := time.Parse(time.RFC3339, c.at)
	if err != nil {
		return domain.InputTransaction{}, nil, fmt.Errorf("invalid time %q: %w", c.at, err)
	}
	return input, &ts, nil
}

type listCmd struct {
	page int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list one page of transactions, newest first" }
func (*listCmd) Usage() string {
	return `walletctl list [-page <n>]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.page, "page", 0, "Zero-based page index.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		records, err := client.FetchPage(ctx, c.page)
		if err != nil {
			return err
		}
		return writeRecords(os.Stdout, records)
	})
}

type balanceCmd struct{}

func (*balanceCmd) Name() string             { return "balance" }
func (*balanceCmd) Synopsis() string         { return "print the ledger balance in BTC" }
func (*balanceCmd) Usage() string            { return "walletctl balance\n" }
func (*balanceCmd) SetFlags(_ *flag.FlagSet) {}

func (*balanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		balance, err := client.FetchBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s BTC\n", balance.String())
		return nil
	})
}

type rateCmd struct{}

func (*rateCmd) Name() string             { return "rate" }
func (*rateCmd) Synopsis() string         { return "print the last known BTC/USD rate" }
func (*rateCmd) Usage() string            { return "walletctl rate\n" }
func (*rateCmd) SetFlags(_ *flag.FlagSet) {}

func (*rateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		sample, err := client.CurrentRate(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatRate(sample))
		return nil
	})
}

type watchCmd struct{}

func (*watchCmd) Name() string             { return "watch" }
func (*watchCmd) Synopsis() string         { return "stream BTC/USD rate updates until interrupted" }
func (*watchCmd) Usage() string            { return "walletctl watch\n" }
func (*watchCmd) SetFlags(_ *flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := withClient(ctx, 0, func(ctx context.Context, client *grpcadapter.Client) error {
		return client.WatchRate(ctx, func(sample *domain.PriceSample) error {
			fmt.Println(formatRate(sample))
			return nil
		})
	})
	// Ctrl-C is the normal way out
	if ctx.Err() != nil {
		return subcommands.ExitSuccess
	}
	return status
}

type valuationCmd struct{}

func (*valuationCmd) Name() string             { return "valuation" }
func (*valuationCmd) Synopsis() string         { return "print the balance converted to USD" }
func (*valuationCmd) Usage() string            { return "walletctl valuation\n" }
func (*valuationCmd) SetFlags(_ *flag.FlagSet) {}

func (*valuationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		result, err := client.GetValuation(ctx)
		if err != nil {
			return err
		}
		fmt.Println(formatValuation(result))
		return nil
	})
}

type eventsCmd struct {
	names string
	from  string
	to    string
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "list recorded analytics events" }
func (*eventsCmd) Usage() string {
	return `walletctl events [-name <a,b,...>] [-from <RFC3339 time>] [-to <RFC3339 time>]

  Events are kept in daemon memory only and are listed oldest first.
`
}

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.names, "name", "", "Comma-separated event names; omit for all.")
	f.StringVar(&c.from, "from", "", "Earliest event time, inclusive.")
	f.StringVar(&c.to, "to", "", "Latest event time, inclusive.")
}

func (c *eventsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	names, from, to, err := c.query()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return withClient(ctx, callTimeout, func(ctx context.Context, client *grpcadapter.Client) error {
		events, err := client.QueryEvents(ctx, names, from, to)
		if err != nil {
			return err
		}
		return writeEvents(os.Stdout, events)
	})
}

func (c *eventsCmd) query() ([]string, time.Time, time.Time, error) {
	var names []string
	for _, n := range strings.Split(c.names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}

	var bounds [2]time.Time
	for i, raw := range []string{c.from, c.to} {
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("invalid time %q: %w", raw, err)
		}
		bounds[i] = ts
	}
	return names, bounds[0], bounds[1], nil
}

func categoryNames() string {
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func formatRecord(r *domain.TransactionRecord) string {
	category := "-"
	if r.Category != nil {
		category = r.Category.DisplayName()
	}
	return fmt.Sprintf("%s %s %s BTC %s %s",
		r.ID, r.Timestamp.UTC().Format(time.RFC3339), r.Amount.String(), r.Type(), category)
}

func writeRecords(w io.Writer, records []*domain.TransactionRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no transactions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAMOUNT (BTC)\tTYPE\tCATEGORY\tID")
	for _, r := range records {
		category := "-"
		if r.Category != nil {
			category = r.Category.DisplayName()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.Amount.String(), r.Type(), category, r.ID)
	}
	return tw.Flush()
}

func writeEvents(w io.Writer, events []analytics.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tPARAMETERS\tID")
	for _, e := range events {
		params := make([]string, 0, len(e.Parameters))
		for _, k := range slices.Sorted(maps.Keys(e.Parameters)) {
			params = append(params, k+"="+e.Parameters[k])
		}
		joined := strings.Join(params, " ")
		if joined == "" {
			joined = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.Date.UTC().Format(time.RFC3339), e.Name, joined, e.ID)
	}
	return tw.Flush()
}

func formatRate(sample *domain.PriceSample) string {
	if sample == nil {
		return "no rate available yet"
	}
	return fmt.Sprintf("1 BTC = %s (observed %s)",
		valuation.FormatUSD(sample.RateUSD), sample.ObservedAt.UTC().Format(time.RFC3339))
}

func formatValuation(v *valuation.Valuation) string {
	if !v.HasRate {
		return fmt.Sprintf("%s BTC (no rate available yet)", v.BalanceBTC.String())
	}
	line := fmt.Sprintf("%s BTC = %s at %s/BTC", v.BalanceBTC.String(), v.DisplayUSD(), valuation.FormatUSD(v.RateUSD))
	if v.Stale {
		line += fmt.Sprintf(" (stale since %s)", v.ObservedAt.UTC().Format(time.RFC3339))
	}
	return line
}
