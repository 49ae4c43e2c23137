// Command skinsync tracks prices of Steam inventory items through a rate-limited market data API.
// Prices, histories and predictions are cached locally so repeated runs stay within the API limits.
//
// Usage:
//
//	skinsync [--config skinsync.yaml] <command> [flags]
//
// Commands:
//
//	setup      interactive config wizard
//	sync       refresh prices (and optionally histories) of tracked items
//	history    show the price history of one item
//	predict    show the rescaled forecast of one item
//	recommend  run the recommendation engine over tracked items
//	last       show the last stored recommendations
//	export     write the last recommendations to an xlsx workbook
//	reset      clear the remote and local price caches
//	serve      run the web API
//
// Configuration is read from the yaml file and SKINSYNC_* environment variables (.env is honoured).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinsync/config"
	"github.com/vadiminshakov/skinsync/internal"
	"github.com/vadiminshakov/skinsync/internal/clients"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/export"
	"github.com/vadiminshakov/skinsync/internal/report"
	"github.com/vadiminshakov/skinsync/internal/services/currency"
	"github.com/vadiminshakov/skinsync/internal/services/scheduler"
	"github.com/vadiminshakov/skinsync/internal/setup"
	"github.com/vadiminshakov/skinsync/internal/web"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "setup" {
		fs := flag.NewFlagSet("setup", flag.ExitOnError)
		out := fs.String("out", setup.DefaultFile, "file to write")
		_ = fs.Parse(args)
		if err := setup.RunTUI(*out); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, cmd, args); err != nil {
		stop()
		logger.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: skinsync [--config file] <setup|sync|history|predict|recommend|last|export|reset|serve> [flags]")
	flag.PrintDefaults()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, cmd string, args []string) error {
	s, err := internal.NewSyncer(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Debug("config loaded",
		zap.String("api_url", cfg.APIURL),
		zap.String("token", cfg.MaskedToken()),
		zap.String("cache_dir", cfg.CacheDir))

	switch cmd {
	case "sync":
		return runSync(ctx, s, args)
	case "history":
		return runHistory(ctx, s, args)
	case "predict":
		return runPredict(ctx, s, args)
	case "recommend":
		return runRecommend(ctx, s, args)
	case "last":
		return runLast(ctx, s, args)
	case "export":
		return runExport(ctx, s, args)
	case "reset":
		if err := s.ResetCache(ctx); err != nil {
			return err
		}
		fmt.Println("cache cleared")
		return nil
	case "serve":
		return runServe(ctx, s, logger, args)
	default:
		usage()
		return errors.Errorf("unknown command %q", cmd)
	}
}

func runSync(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	force := fs.Bool("force", false, "ignore cached prices")
	withHistory := fs.Bool("history", false, "also warm the history cache")
	_ = fs.Parse(args)

	items, err := s.Items(ctx)
	if err != nil {
		return err
	}

	quotes, err := s.SyncPrices(ctx, items, *force, printProgress)
	fmt.Println()
	if err != nil {
		return err
	}

	rows := make([]report.QuoteRow, 0, len(quotes))
	for _, q := range quotes {
		quote, err := currency.ConvertQuote(q.Quote, s.Config().Currency)
		if err != nil {
			return err
		}
		rows = append(rows, report.QuoteRow{Item: q.Item, Quote: quote, Source: q.Source})
	}
	fmt.Println(report.Quotes(rows))

	if *withHistory {
		if _, err := s.SyncHistory(ctx, items, printProgress); err != nil {
			fmt.Println()
			return err
		}
		fmt.Println()
	}
	return nil
}

func runHistory(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	key := fs.String("item", "", "item key appid:market_hash_name")
	last := fs.Int("last", 30, "points to show, 0 for all")
	_ = fs.Parse(args)

	item, err := domain.ParseItemKey(*key)
	if err != nil {
		return err
	}
	res, err := s.History(ctx, item)
	if err != nil {
		return err
	}
	h, err := currency.ConvertHistory(res.Value, s.Config().Currency)
	if err != nil {
		return err
	}
	fmt.Println(report.History(item, h, s.Config().Currency, *last))
	return nil
}

func runPredict(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	key := fs.String("item", "", "item key appid:market_hash_name")
	horizon := fs.Int("horizon", s.Config().Horizon, "days ahead")
	_ = fs.Parse(args)

	item, err := domain.ParseItemKey(*key)
	if err != nil {
		return err
	}
	res, err := s.Predict(ctx, item, *horizon)
	if err != nil {
		return err
	}
	p, err := currency.ConvertPrediction(res.Value, s.Config().Currency)
	if err != nil {
		return err
	}
	fmt.Println(report.Prediction(item, p))
	return nil
}

func runRecommend(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	horizon := fs.Int("horizon", 0, "days ahead, config horizon when 0")
	full := fs.Bool("full", false, "show every item instead of the digest")
	_ = fs.Parse(args)

	items, err := s.Items(ctx)
	if err != nil {
		return err
	}

	sub := s.Engine().Subscribe(printProgress)
	defer sub()

	snap, err := s.Recommend(ctx, items, *horizon)
	fmt.Println()
	if err != nil {
		return err
	}
	return printSnapshot(s, snap, *full)
}

func runLast(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("last", flag.ExitOnError)
	full := fs.Bool("full", false, "show every item instead of the digest")
	_ = fs.Parse(args)

	snap, err := s.Engine().LastSnapshot(ctx)
	if errors.Is(err, clients.ErrNotFound) {
		fmt.Println("no recommendations yet, run `skinsync recommend`")
		return nil
	}
	if err != nil {
		return err
	}
	return printSnapshot(s, snap, *full)
}

func runExport(ctx context.Context, s *internal.Syncer, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "recommendations.xlsx", "xlsx file to write")
	_ = fs.Parse(args)

	snap, err := s.Engine().LastSnapshot(ctx)
	if errors.Is(err, clients.ErrNotFound) {
		return errors.New("no recommendations to export, run `skinsync recommend` first")
	}
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return errors.Wrap(err, "failed to create export file")
	}
	defer f.Close()

	if err := export.WriteXLSX(f, *snap, s.Config().Currency); err != nil {
		return err
	}
	fmt.Printf("exported %d items to %s\n", len(snap.All), *out)
	return nil
}

func runServe(ctx context.Context, s *internal.Syncer, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	recommend := fs.Bool("recommend", false, "start a recommendation run on startup")
	_ = fs.Parse(args)

	cfg := s.Config()
	server := web.NewServer(cfg.Listen, s, s.Engine(), cfg.Currency, cfg.Locale, logger.Named("web"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	if *recommend {
		g.Go(func() error {
			items, err := s.Items(ctx)
			if err != nil {
				logger.Error("failed to list items", zap.Error(err))
				return nil
			}
			if _, err := s.Recommend(ctx, items, 0); err != nil {
				logger.Error("startup recommendation run failed", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func printSnapshot(s *internal.Syncer, snap *domain.RecommendationSnapshot, full bool) error {
	to := s.Config().Currency
	out := *snap

	var err error
	if out.All, err = currency.ConvertRecords(snap.All, to); err != nil {
		return err
	}
	if out.Digest.TopGainers, err = currency.ConvertRecords(snap.Digest.TopGainers, to); err != nil {
		return err
	}
	if out.Digest.TopLosers, err = currency.ConvertRecords(snap.Digest.TopLosers, to); err != nil {
		return err
	}

	fmt.Println(report.Snapshot(out, full))
	return nil
}

func printProgress(p scheduler.Progress) {
	fmt.Print("\r\033[K" + report.Progress(p))
}
