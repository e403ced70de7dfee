// Package couponimport finds coupon codes shared by several gzip batch files
// and stores them as active coupons.
//
// Files can hold hundreds of millions of lines, so codes are never collected
// in full. Pass 1 builds one bloom filter per file. Pass 2 re-streams every
// file and keeps only codes that another file's filter may contain, tagging
// each with a bit per file. Codes whose mask has at least MinFiles bits set
// are accepted. Bloom false positives can only add candidates; the exact
// per-file masks from pass 2 decide.
package couponimport

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"sort"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Defaults applied by Scan for zero Options fields.
const (
	DefaultExpectedCodes = 10_000_000
	DefaultFalsePositive = 0.001
	DefaultMinFiles      = 2
	DefaultMinCodeLen    = 8
	DefaultMaxCodeLen    = 10
	progressEvery        = 10_000_000
)

// maxFiles is bounded by the width of the per-code file mask.
const maxFiles = bits.UintSize

// Options tunes Scan.
type Options struct {
	// ExpectedCodes sizes each bloom filter.
	ExpectedCodes uint
	FalsePositive float64
	// MinFiles is the number of distinct files a code must appear in.
	MinFiles   int
	MinCodeLen int
	MaxCodeLen int
}

func (o *Options) setDefaults() {
	if o.ExpectedCodes == 0 {
		o.ExpectedCodes = DefaultExpectedCodes
	}
	if o.FalsePositive <= 0 {
		o.FalsePositive = DefaultFalsePositive
	}
	if o.MinFiles <= 0 {
		o.MinFiles = DefaultMinFiles
	}
	if o.MinCodeLen <= 0 {
		o.MinCodeLen = DefaultMinCodeLen
	}
	if o.MaxCodeLen <= 0 {
		o.MaxCodeLen = DefaultMaxCodeLen
	}
}

// Scan returns the normalized codes found in at least opts.MinFiles of the
// given files, sorted.
func Scan(ctx context.Context, lg *zap.Logger, files []string, opts Options) ([]string, error) {
	opts.setDefaults()
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files are supported, got %d", maxFiles, len(files))
	}
	if len(files) < opts.MinFiles {
		return nil, errors.Errorf("need at least %d files, got %d", opts.MinFiles, len(files))
	}

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, lg, files, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: finding shared codes")
	codes, err := findShared(ctx, lg, files, filters, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find shared codes")
	}
	lg.Info("Shared codes found", zap.Int("count", len(codes)))
	return codes, nil
}

func buildFilters(ctx context.Context, lg *zap.Logger, files []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.ExpectedCodes, opts.FalsePositive)
			var count uint64
			err := streamCodes(ctx, path, opts, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func findShared(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter, opts Options) ([]string, error) {
	masks := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)
			var count uint64
			err := streamCodes(ctx, path, opts, func(code string) {
				count++
				if count%progressEvery == 0 {
					lg.Info("Pass 2 progress", zap.String("file", path), zap.Uint64("codes", count))
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= bit
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Uint64("codes", count),
				zap.Int("candidates", len(candidates)),
			)
			masks[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	var shared []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= opts.MinFiles {
			shared = append(shared, code)
		}
	}
	sort.Strings(shared)
	return shared, nil
}

// streamCodes calls fn for every line of the gzip file at path whose
// normalized form has an accepted length.
func streamCodes(ctx context.Context, path string, opts Options, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < opts.MinCodeLen || len(code) > opts.MaxCodeLen {
			continue
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// Stats counts the outcome of Import.
type Stats struct {
	Created   int
	Duplicate int
}

// Import creates an active coupon for every code. Codes that already exist
// are counted and skipped.
func Import(ctx context.Context, lg *zap.Logger, repo coupon.Repository, codes []string, discount decimal.Decimal) (Stats, error) {
	var stats Stats
	now := time.Now().UTC()
	for i, code := range codes {
		c := &coupon.Coupon{Code: code, Discount: discount, Active: true, CreatedAt: now}
		if err := c.Validate(); err != nil {
			return stats, err
		}
		switch err := repo.Create(ctx, c); {
		case err == nil:
			stats.Created++
		case errors.Is(err, coupon.ErrDuplicateCode):
			stats.Duplicate++
		default:
			return stats, errors.Wrapf(err, "create coupon %s", code)
		}

		if n := i + 1; n%1000 == 0 || n == len(codes) {
			lg.Info("Import progress", zap.Int("written", n), zap.Int("total", len(codes)))
		}
	}
	return stats, nil
}
