// Command coupon-import stores codes that appear in at least two of the
// given gzip batch files as active coupons.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/couponimport"
	"github.com/xenking/storefront/internal/storage"
)

func main() {
	var (
		dataDir  string
		pattern  string
		discount string
		dryRun   bool
		opts     couponimport.Options
		storeCfg storage.Config
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing the batch files")
	flag.StringVar(&pattern, "pattern", "couponbase*.gz", "glob selecting batch files inside data-dir")
	flag.StringVar(&discount, "discount", "10", "discount percent of imported coupons")
	flag.BoolVar(&dryRun, "dry-run", false, "only report shared codes")
	flag.UintVar(&opts.ExpectedCodes, "expected-codes", couponimport.DefaultExpectedCodes, "bloom filter capacity per file")
	flag.IntVar(&opts.MinFiles, "min-files", couponimport.DefaultMinFiles, "files a code must appear in")
	storeCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	storeCfg.ApplyEnv()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, dataDir, pattern, discount, dryRun, opts, storeCfg); err != nil {
		lg.Error("Coupon import failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Coupon import completed")
}

func run(
	ctx context.Context,
	lg *zap.Logger,
	dataDir, pattern, discount string,
	dryRun bool,
	opts couponimport.Options,
	storeCfg storage.Config,
) error {
	pct, err := decimal.NewFromString(discount)
	if err != nil {
		return errors.Wrap(err, "parse discount")
	}

	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "match batch files")
	}
	sort.Strings(files)
	lg.Info("Batch files", zap.Strings("files", files))

	codes, err := couponimport.Scan(ctx, lg, files, opts)
	if err != nil {
		return err
	}
	if len(codes) == 0 || dryRun {
		lg.Info("Nothing to write", zap.Int("codes", len(codes)), zap.Bool("dry_run", dryRun))
		return nil
	}

	backend, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() { _ = backend.Close(context.WithoutCancel(ctx)) }()

	stats, err := couponimport.Import(ctx, lg, backend.Coupons, codes, pct)
	if err != nil {
		return errors.Wrap(err, "import coupons")
	}
	lg.Info("Coupons written",
		zap.Int("created", stats.Created),
		zap.Int("duplicate", stats.Duplicate),
	)
	return nil
}
