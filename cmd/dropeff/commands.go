package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/lawnchairsociety/dropefficiency/internal/config"
	"github.com/lawnchairsociety/dropefficiency/internal/database"
	"github.com/lawnchairsociety/dropefficiency/internal/drops"
	"github.com/lawnchairsociety/dropefficiency/internal/efficiency"
	"github.com/lawnchairsociety/dropefficiency/internal/export"
	"github.com/lawnchairsociety/dropefficiency/internal/gamepress"
	"github.com/lawnchairsociety/dropefficiency/internal/logger"
	"github.com/lawnchairsociety/dropefficiency/internal/report"
)

// setup initializes logging from the config file and loads the rest of it.
func setup(configPath string) (*config.Config, error) {
	logConfig, err := logger.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load logging config: %w", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// splitList splits a comma separated flag value, dropping blank entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func openArchive(cfg *config.Config) (*database.Database, error) {
	db, err := database.OpenWithConfig(cfg.DatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive: %w", err)
	}
	return db, nil
}

func runFetch(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	output := fs.String("output", "", "Drops file to write (default from config)")
	concurrency := fs.Int("concurrency", 0, "Quest pages fetched in parallel (0 for default)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}
	path := *output
	if path == "" {
		path = cfg.DropsPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gamepress.NewClient(gamepress.Config{
		BaseURL:           cfg.Fetch.BaseURL,
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerMinute: cfg.Fetch.RequestsPerMinute,
		Timeout:           cfg.FetchTimeout(),
		Concurrency:       *concurrency,
	})

	logger.Info("Fetching drop rates", "base_url", cfg.Fetch.BaseURL, "start", cfg.Fetch.StartSection, "end", cfg.Fetch.EndSection)
	ds, rep, err := client.FetchDataset(ctx, cfg.Fetch.StartSection, cfg.Fetch.EndSection)
	if err != nil {
		return err
	}

	if err := ds.Save(path); err != nil {
		return err
	}
	digest, err := ds.Digest()
	if err != nil {
		return err
	}
	logger.Infof("Fetched %d sections and %d quests", rep.Sections, rep.Quests)
	logger.Info("Drops file written", "path", path, "digest", digest)

	fmt.Fprintf(stdout, "Wrote %s: %d sections, %d quests, %d warnings\n", path, rep.Sections, rep.Quests, len(rep.Warnings))
	return nil
}

func runCompute(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	dropsPath := fs.String("drops", "", "Drops file to read (default from config)")
	threshold := fs.String("threshold", "", "Minimum node efficiency (default from config)")
	allow := fs.String("allow", "", "Comma separated items to restrict to; overrides the deny-list")
	deny := fs.String("deny", "", "Comma separated items to exclude, added to the configured deny-list")
	items := fs.String("items", "", "Comma separated items to report (default from config)")
	noArchive := fs.Bool("no-archive", false, "Do not record the run in the archive")
	noExport := fs.Bool("no-export", false, "Do not write the JSON result files")
	strict := fs.Bool("strict", false, "Fail when any item has no qualifying location")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	if *threshold != "" {
		v, err := strconv.ParseFloat(*threshold, 64)
		if err != nil {
			return fmt.Errorf("invalid -threshold %q: %w", *threshold, err)
		}
		cfg.Threshold = v
	}
	if list := splitList(*allow); len(list) > 0 {
		cfg.Policy.Allow = list
	}
	cfg.Policy.Deny = append(cfg.Policy.Deny, splitList(*deny)...)
	if list := splitList(*items); len(list) > 0 {
		cfg.Output = list
	}

	path := *dropsPath
	if path == "" {
		path = cfg.DropsPath()
	}
	ds, err := drops.Load(path)
	if err != nil {
		return err
	}

	opts := cfg.Options()
	res, err := efficiency.Compute(ds, opts)
	if err != nil {
		return err
	}
	logger.Info("Computed rankings",
		"nodes", len(res.Efficiency),
		"items", len(res.BestAPD),
		"unranked", len(res.Unranked),
		"threshold", res.Threshold,
		"policy", opts.Policy.Mode())

	if !*noExport {
		written, err := export.WriteAll(cfg.Paths.OutputDir, cfg.Paths.Prefix, res)
		if err != nil {
			return err
		}
		logger.Debug("Exported results", "files", written)
	}

	if !*noArchive {
		if err := archive(cfg, ds, opts, res); err != nil {
			return err
		}
	}

	if err := report.Print(stdout, res, cfg.Output); err != nil {
		return err
	}

	if err := res.UnrankedErr(); err != nil {
		if *strict {
			return err
		}
		logger.Warning("Some items have no qualifying location", "items", res.Unranked)
	}
	return nil
}

func archive(cfg *config.Config, ds *drops.Dataset, opts efficiency.Options, res *efficiency.Result) error {
	digest, err := ds.Digest()
	if err != nil {
		return err
	}

	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := db.SaveRun(digest, opts.Policy.Mode(), res)
	if err != nil {
		return err
	}
	logger.Info("Run archived", "run", id, "digest", digest[:12])
	return nil
}

func runShow(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	runID := fs.Int64("run", 0, "Run to show (0 for the latest)")
	items := fs.String("items", "", "Comma separated items to report (default from config)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}
	if list := splitList(*items); len(list) > 0 {
		cfg.Output = list
	}

	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var run *database.Run
	if *runID == 0 {
		run, err = db.GetLatestRun()
	} else {
		run, err = db.GetRun(*runID)
	}
	if err != nil {
		return err
	}

	res, err := db.LoadResult(run.ID)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Run %d (%s, threshold %.2f, %s)\n", run.ID, run.Policy, run.Threshold, run.CreatedAt.Format("2006-01-02 15:04"))
	return report.Print(stdout, res, cfg.Output)
}

func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: dropeff history [-config path] <item>")
		return errUsage
	}
	item := fs.Arg(0)

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	history, err := db.GetItemHistory(item)
	if err != nil {
		return err
	}
	return report.PrintHistory(stdout, item, history)
}

func runRuns(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	deleteID := fs.Int64("delete", 0, "Delete the run with this id instead of listing")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	cfg, err := setup(*configPath)
	if err != nil {
		return err
	}

	db, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if *deleteID != 0 {
		if err := db.DeleteRun(*deleteID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted run %d\n", *deleteID)
		return nil
	}

	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	return report.PrintRuns(stdout, runs)
}
