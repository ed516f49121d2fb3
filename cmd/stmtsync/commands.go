package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jask/stmtsync/internal/config"
	"github.com/jask/stmtsync/internal/service"
	"github.com/jask/stmtsync/internal/statement"
	"github.com/jask/stmtsync/internal/testdata"
)

var stdout io.Writer = os.Stdout

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func requireUser(user string) error {
	if user == "" {
		return errors.New("-user is required")
	}
	return nil
}

// newImportService wires the pipeline on b. The returned func releases the
// rule cache.
func newImportService(b *backend, cfg config.Config, logger *log.Logger, reg prometheus.Registerer) (*service.ImportService, func(), error) {
	threshold, err := cfg.Import.Threshold()
	if err != nil {
		return nil, nil, err
	}
	rules, err := service.NewCategoryRuleService(b.store, logger)
	if err != nil {
		return nil, nil, err
	}
	var metrics *service.Metrics
	if reg != nil {
		metrics = service.NewMetrics(reg)
		rules.Metrics = metrics
	}
	svc := &service.ImportService{
		Store:             b.store,
		Rules:             rules,
		Reviews:           b.reviews,
		Logger:            logger,
		Metrics:           metrics,
		Workers:           cfg.Import.Workers,
		AnomalyThreshold:  threshold,
		SuggestCategories: cfg.Import.SuggestCategories,
	}
	return svc, rules.Close, nil
}

// decodeBatch reads parser output and turns it into a batch for opts.UserID,
// creating accounts as needed.
func decodeBatch(ctx context.Context, b *backend, r io.Reader, opts statement.BatchOptions) (service.ImportBatch, error) {
	docs, err := statement.Decode(r)
	if err != nil {
		return service.ImportBatch{}, err
	}
	accounts := &service.AccountResolver{Accounts: b.store, UserID: opts.UserID}
	resolve := func(ctx context.Context, s statement.Statement) (string, error) {
		return accounts.Resolve(ctx, s.Bank, s.StatementType, s.AccountRef())
	}
	return statement.ToBatch(ctx, docs, opts, resolve)
}

func importCmd(ctx context.Context, b *backend, cfg config.Config, logger *log.Logger, args []string) error {
	fs := newFlags("import")
	user := fs.String("user", "", "user id")
	file := fs.String("file", "", "parsed statement JSON (- for stdin)")
	provider := fs.String("provider", cfg.Import.Provider, "provider identifier used in idempotency keys")
	account := fs.String("account", "", "account number for statements that carry none")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	batch, err := decodeBatch(ctx, b, in, statement.BatchOptions{
		UserID:         *user,
		Provider:       *provider,
		SourceFilename: filepath.Base(*file),
		AccountRef:     *account,
	})
	if err != nil {
		return err
	}

	svc, release, err := newImportService(b, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer release()

	res, err := svc.Import(ctx, batch)
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(res); encErr != nil {
			return encErr
		}
	} else {
		printResult(stdout, res)
	}
	return err
}

func printResult(w io.Writer, res service.ImportResult) {
	fmt.Fprintf(w, "imported %d, skipped %d, errors %d\n", res.ImportedCount, res.SkippedCount, res.ErrorCount)
	fmt.Fprintf(w, "auto-merged %d, review %d, new %d\n", res.Decisions.AutoMerged, res.Decisions.Review, res.Decisions.NoMatch)
	for _, e := range res.PerItemErrors {
		fmt.Fprintf(w, "  item %d (%s): %s\n", e.Index, e.Stage, e.Reason)
	}
	for _, u := range res.AccountUpdates {
		fmt.Fprintf(w, "account %s %s..%s\n", u.AccountID, u.PeriodFrom.Format("2006-01-02"), u.PeriodTo.Format("2006-01-02"))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, d := range u.Diffs {
			mark := ""
			if d.Anomalous {
				mark = "!"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", d.Field, d.Kind, decString(d.Previous), decString(d.Current), mark)
		}
		_ = tw.Flush()
	}
	for _, wmsg := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", wmsg)
	}
}

func reviewCmd(ctx context.Context, b *backend, cfg config.Config, logger *log.Logger, args []string) error {
	fs := newFlags("review")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	svc, release, err := newImportService(b, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer release()

	pending, err := svc.PendingReviews(ctx, *user)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(stdout, "no pending reviews")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSACTION\tCANDIDATE\tSCORE")
	for _, p := range pending {
		for _, c := range p.Candidates {
			fmt.Fprintf(tw, "%s\t%s\t%.4f\n", p.TransactionID, c.CandidateID, c.Score)
		}
	}
	return tw.Flush()
}

func resolveCmd(ctx context.Context, b *backend, cfg config.Config, logger *log.Logger, args []string) error {
	fs := newFlags("resolve")
	user := fs.String("user", "", "user id")
	tx := fs.String("tx", "", "imported transaction id")
	candidate := fs.String("candidate", "", "candidate to merge into the imported transaction")
	dismiss := fs.Bool("dismiss", false, "keep both records")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	if *tx == "" || (*candidate == "") == !*dismiss {
		return errors.New("need -tx and exactly one of -candidate or -dismiss")
	}
	svc, release, err := newImportService(b, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer release()

	if *dismiss {
		if err := svc.Dismiss(ctx, *user, *tx); err != nil {
			return err
		}
		logger.Info("review dismissed", "transaction", *tx)
		return nil
	}
	merged, err := svc.ResolveReview(ctx, *user, *tx, *candidate)
	if err != nil {
		return err
	}
	logger.Info("review merged", "transaction", *tx, "candidate", *candidate,
		"category", strOrEmpty(merged.CategoryID), "carried", merged.CarriedManualCategory)
	return nil
}

func rulesCmd(ctx context.Context, b *backend, logger *log.Logger, args []string) error {
	fs := newFlags("rules")
	user := fs.String("user", "", "user id")
	suggest := fs.String("suggest", "", "description to suggest a category for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	rules, err := service.NewCategoryRuleService(b.store, logger)
	if err != nil {
		return err
	}
	defer rules.Close()

	if *suggest != "" {
		s, err := rules.Suggest(ctx, *user, service.RuleSource{RawDescription: *suggest})
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(stdout, "no suggestion")
			return nil
		}
		fmt.Fprintf(stdout, "%s (pattern %q, seen %d, similarity %.2f)\n", s.CategoryID, s.Pattern, s.MatchCount, s.Similarity)
		return nil
	}

	list, err := rules.Rules(ctx, *user)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATTERN\tCATEGORY\tMATCHES")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Pattern, r.CategoryID, r.MatchCount)
	}
	return tw.Flush()
}

func seedCmd(ctx context.Context, b *backend, logger *log.Logger, args []string) error {
	fs := newFlags("seed")
	user := fs.String("user", "", "user id")
	count := fs.Int("count", 20, "number of transactions")
	seed := fs.Int64("seed", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	id, err := testdata.Seed(ctx, b.store, testdata.Options{UserID: *user, Count: *count, Seed: *seed})
	if err != nil {
		return err
	}
	logger.Info("seeded", "account", id, "transactions", *count)
	return nil
}

func resetCmd(ctx context.Context, b *backend, logger *log.Logger, args []string) error {
	fs := newFlags("reset")
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	if b.db == nil {
		return errors.New("reset is only available for the sqlite store")
	}
	m := &service.MaintenanceService{DB: b.db}
	if err := m.Reset(ctx, *user); err != nil {
		return err
	}
	logger.Info("user data removed", "user", *user)
	return nil
}

func categorizeCmd(ctx context.Context, b *backend, cfg config.Config, logger *log.Logger, args []string) error {
	fs := newFlags("categorize")
	user := fs.String("user", "", "user id")
	txs := fs.String("tx", "", "comma-separated transaction ids")
	category := fs.String("category", "", "category id to assign")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireUser(*user); err != nil {
		return err
	}
	var ids []string
	for _, id := range strings.Split(*txs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	svc, release, err := newImportService(b, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer release()

	res, err := svc.Categorize(ctx, *user, ids, *category)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn(w)
	}
	fmt.Fprintf(stdout, "categorized %d transaction(s) as %s, %d rule(s) learned\n", res.Updated, *category, res.RulesLearned)
	return nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
