package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/NTFSvolume/hoard/internal/cookies"
	"github.com/NTFSvolume/hoard/internal/history"
	"github.com/NTFSvolume/hoard/internal/orchestrator"
	"github.com/NTFSvolume/hoard/internal/progress"
	"github.com/NTFSvolume/hoard/internal/scraper"
	"github.com/NTFSvolume/hoard/internal/sorter"
	"github.com/NTFSvolume/hoard/pkg/hoardlib"
	"github.com/NTFSvolume/hoard/pkg/logger"
)

func runAction(ctx *cli.Context) error {
	settings, err := settingsFromFlags(ctx)
	if err != nil {
		return err
	}

	logFolder := logFolderFor(ctx.String("appdata-dir"))
	logFile, err := logger.OpenRotating(logFolder, "main.log", 0)
	if err != nil {
		return fmt.Errorf("cannot open main log: %w", err)
	}
	defer logFile.Close()
	runLog := log.New(logFile, "", log.LstdFlags)

	groups, err := collectInput(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return errors.New("no URLs to download, pass them as arguments or via --input-file")
	}

	store, err := history.Open(filepath.Join(ctx.String("appdata-dir"), "hoard.db"), runLog)
	if err != nil {
		return err
	}
	defer store.Close()

	pool, err := hoardlib.NewClientPool(&hoardlib.ClientPoolOpts{
		UserAgent: ctx.String("user-agent"),
		SSLMode:   sslMode(ctx),
	})
	if err != nil {
		return err
	}
	defer pool.CloseIdle()

	if dir, browser := ctx.String("cookies-dir"), ctx.String("browser-cookies"); dir != "" || browser != "" {
		if _, err := cookies.LoadDir(dir, browser, pool.Jar(), runLog); err != nil {
			return fmt.Errorf("cookie import failed: %w", err)
		}
	}

	speedLimit, err := parseSize(ctx.String("speed-limit"))
	if err != nil {
		return fmt.Errorf("invalid --speed-limit: %w", err)
	}
	gates := hoardlib.NewGates(&hoardlib.GateOpts{
		DownloadSlots:           ctx.Int64("max-simultaneous-downloads"),
		DomainSlots:             ctx.Int64("max-simultaneous-downloads-per-domain"),
		RequestsPerSecond:       ctx.Float64("rate-limit"),
		GlobalRequestsPerSecond: ctx.Float64("global-rate-limit"),
		SpeedLimit:              speedLimit,
	})

	requiredFree, err := parseSize(ctx.String("required-free-space"))
	if err != nil {
		return fmt.Errorf("invalid --required-free-space: %w", err)
	}
	storage := hoardlib.NewStorageMonitor(requiredFree, runLog)
	defer storage.Close()

	var barOut io.Writer
	if !ctx.Bool("no-ui") && !simplifiedUI() {
		barOut = os.Stderr
	}
	reporter := progress.New(barOut)

	states := hoardlib.NewStates()
	var probe hoardlib.DurationProber
	if hoardlib.HaveFFProbe() {
		probe = hoardlib.FFProbeDuration
	}
	streamer := hoardlib.NewStreamer(&hoardlib.StreamerOpts{
		Settings: settings,
		Pool:     pool,
		Gates:    gates,
		Storage:  storage,
		History:  store,
		States:   states,
		Probe:    probe,
		Logger:   runLog,
		Handlers: &hoardlib.Handlers{
			NewHook: func(filename string, total int64) hoardlib.ProgressHook {
				return reporter.NewHook(filename, total)
			},
			PreviouslyDownloadedHandler: func(*hoardlib.MediaItem) { reporter.AddPreviouslyCompleted() },
			SkippedHandler:              func(*hoardlib.MediaItem, string) { reporter.AddSkipped() },
			CompletedHandler:            func(*hoardlib.MediaItem) { reporter.AddCompleted() },
		},
	})

	hasher := hoardlib.NewHasher(&hoardlib.HasherOpts{
		DB:         store,
		ExtraAlgos: settings.ExtraHashAlgos,
		Logger:     runLog,
		PrevHashed: reporter.AddPrevHashed,
		Hashed:     func(hoardlib.HashAlgo) { reporter.AddHashed() },
	})
	deduper := hoardlib.NewDeduper(&hoardlib.DeduperOpts{
		DB:       store,
		Settings: settings,
		Logger:   runLog,
		OnDelete: reporter.AddRemoved,
	})

	registry := scraper.NewRegistry()
	direct := scraper.NewDirectHTTP(settings.DownloadDir)

	orch := orchestrator.New(&orchestrator.Opts{
		Settings:  settings,
		States:    states,
		Streamer:  streamer,
		Hasher:    hasher,
		Deduper:   deduper,
		Registry:  registry,
		Direct:    direct,
		Reporter:  reporter,
		LogFolder: logFolder,
		Logger:    runLog,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		runLog.Println("signal received, shutting down")
		states.SetShuttingDown()
		cancel()
	}()

	start := time.Now()
	runErr := orch.Run(runCtx, groups)
	reporter.Wait()

	if err := sorter.RemoveStrayPartials(settings.DownloadDir, nil); err != nil {
		runLog.Printf("cleanup: %s", err)
	}
	if err := sorter.PruneEmptyFolders(settings.DownloadDir, runLog); err != nil {
		runLog.Printf("cleanup: %s", err)
	}
	if settings.SortDownloads {
		s := &sorter.Sorter{
			Source: settings.DownloadDir,
			Dest:   settings.DownloadDir,
			Logger: runLog,
		}
		if err := s.Run(); err != nil {
			runLog.Printf("sort: %s", err)
		}
	}

	printStats(reporter.Stats(), time.Since(start))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func hashAction(ctx *cli.Context) error {
	target := ctx.Args().First()
	if target == "" {
		return errors.New("usage: hoard hash <folder>")
	}
	store, err := history.Open(filepath.Join(ctx.String("appdata-dir"), "hoard.db"), nil)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher := hoardlib.NewHasher(&hoardlib.HasherOpts{
		DB:         store,
		ExtraAlgos: parseHashAlgos(ctx.StringSlice("add-hash")),
	})
	return filepath.Walk(target, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		results, err := hasher.HashFile(context.Background(), path)
		if err != nil {
			return err
		}
		for algo, res := range results {
			fmt.Printf("%s  %s  %s\n", algo, res.Hash, path)
			folder, filename := filepath.Dir(path), filepath.Base(path)
			if err := store.InsertOrUpdateFile(folder, filename, filename, "", res.FileSize, 0); err != nil {
				return err
			}
			if err := store.InsertOrUpdateHash(folder, filename, algo, res.Hash, res.FileSize, res.Mtime); err != nil {
				return err
			}
		}
		return nil
	})
}

func sortAction(ctx *cli.Context) error {
	source := ctx.Args().First()
	if source == "" {
		return errors.New("usage: hoard sort <folder>")
	}
	dest := ctx.String("dest")
	if dest == "" {
		dest = source
	}
	s := &sorter.Sorter{
		Source:              source,
		Dest:                dest,
		KeepFolderStructure: ctx.Bool("keep-folder-structure"),
		Logger:              log.New(os.Stderr, "", log.LstdFlags),
	}
	return s.Run()
}

func settingsFromFlags(ctx *cli.Context) (*hoardlib.Settings, error) {
	s := &hoardlib.Settings{
		DownloadDir:               ctx.String("download-dir"),
		SkipHosts:                 ctx.StringSlice("skip-hosts"),
		OnlyHosts:                 ctx.StringSlice("only-hosts"),
		BlockedDomains:            ctx.StringSlice("blocked-domains"),
		SlowDownloadSpeed:         ctx.Float64("slow-download-speed"),
		DownloadDelay:             ctx.Duration("download-delay"),
		Jitter:                    ctx.Duration("jitter"),
		DisableRanges:             ctx.Bool("disable-ranges"),
		IgnoreHistory:             ctx.Bool("ignore-history"),
		AutoDedupe:                ctx.BoolT("auto-dedupe"),
		SendToTrash:               ctx.BoolT("send-deleted-to-trash"),
		DisableAttemptLimit:       ctx.Bool("disable-download-attempt-limit"),
		DownloadAttempts:          ctx.Int("download-attempts"),
		SkipDownloadMarkCompleted: ctx.Bool("skip-download-mark-completed"),
		DisableFileTimestamps:     ctx.Bool("disable-file-timestamps"),
		SortDownloads:             ctx.Bool("sort-downloads"),
		ExtraHashAlgos:            parseHashAlgos(ctx.StringSlice("add-hash")),
	}

	switch ctx.String("hashing") {
	case "off":
		s.Hashing = hoardlib.HashingOff
	case "in_place", "":
		s.Hashing = hoardlib.HashingInPlace
	case "post_download":
		s.Hashing = hoardlib.HashingPostDownload
	default:
		return nil, fmt.Errorf("invalid --hashing value %q", ctx.String("hashing"))
	}

	if pattern := ctx.String("filename-regex-filter"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid --filename-regex-filter: %w", err)
		}
		s.FilenameRegex = re
	}
	var err error
	if s.ExcludeBefore, err = parseDate(ctx.String("exclude-before")); err != nil {
		return nil, fmt.Errorf("invalid --exclude-before: %w", err)
	}
	if s.ExcludeAfter, err = parseDate(ctx.String("exclude-after")); err != nil {
		return nil, fmt.Errorf("invalid --exclude-after: %w", err)
	}
	return s, nil
}

func collectInput(ctx *cli.Context) ([]orchestrator.InputGroup, error) {
	var groups []orchestrator.InputGroup
	if file := ctx.String("input-file"); file != "" {
		parsed, err := orchestrator.ParseInputFile(file)
		if err != nil {
			return nil, err
		}
		groups = parsed
	}
	var loose orchestrator.InputGroup
	for _, arg := range ctx.Args() {
		loose.URLs = append(loose.URLs, orchestrator.ExtractURLs(arg)...)
	}
	if len(loose.URLs) != 0 {
		groups = append(groups, loose)
	}
	return groups, nil
}

func parseHashAlgos(names []string) []hoardlib.HashAlgo {
	var out []hoardlib.HashAlgo
	for _, n := range names {
		switch n {
		case "md5":
			out = append(out, hoardlib.HashMD5)
		case "sha256":
			out = append(out, hoardlib.HashSHA256)
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseSize(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func sslMode(ctx *cli.Context) hoardlib.SSLMode {
	if ctx.Bool("disable-ssl-verification") {
		return hoardlib.SSLDisabled
	}
	return hoardlib.SSLDefault
}

// logFolderFor honors DEBUG_LOG_FOLDER over the appdata default.
func logFolderFor(appdata string) string {
	if env := os.Getenv("DEBUG_LOG_FOLDER"); env != "" {
		return env
	}
	return filepath.Join(appdata, "logs")
}

// simplifiedUI reports whether the environment asks for plain output:
// SSH sessions without a display, or PORTRAIT_MODE terminals.
func simplifiedUI() bool {
	if os.Getenv("PORTRAIT_MODE") != "" {
		return true
	}
	if os.Getenv("SSH_CONNECTION") != "" &&
		os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return true
	}
	return false
}

func printStats(stats progress.Stats, elapsed time.Duration) {
	fmt.Printf("\nFinished in %s\n", elapsed.Round(time.Second))
	fmt.Printf("  Completed:             %d\n", stats.Completed)
	fmt.Printf("  Previously downloaded: %d\n", stats.PreviouslyDownloaded)
	fmt.Printf("  Skipped:               %d\n", stats.Skipped)
	fmt.Printf("  Failed:                %d\n", stats.Failed)
	if stats.Hashed != 0 || stats.PrevHashed != 0 {
		fmt.Printf("  Hashed:                %d (%d cached)\n", stats.Hashed, stats.PrevHashed)
	}
	if stats.Removed != 0 {
		fmt.Printf("  Duplicates removed:    %d\n", stats.Removed)
	}
}
