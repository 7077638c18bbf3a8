package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dikkadev/fmu/pkg/config"
	"github.com/dikkadev/fmu/pkg/factorio"
	"github.com/dikkadev/fmu/pkg/journal"
	"github.com/dikkadev/fmu/pkg/logging"
	"github.com/dikkadev/fmu/pkg/portal"
	"github.com/dikkadev/fmu/pkg/selector"
	"github.com/dikkadev/fmu/pkg/updater"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	verbosity int

	// Sync flags
	dryRun      bool
	interactive bool

	// History flags
	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fmu",
	Short: "Keep Factorio mod packs in sync with the mod portal",
	Long: `fmu compares the mods recorded in a mod pack manifest against the latest
releases on the Factorio mod portal, downloads stale mods into the game's
mods directory, and rewrites the manifest for everything that downloaded
successfully. The previous manifest is archived before every rewrite.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbosity)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download stale mods and commit the new versions",
	Long: `Sync fetches the mod portal catalog for the installed Factorio version,
computes which mods are stale, downloads each distinct mod file once, moves
the downloads into the mods directory and rewrites the manifest.

Failed downloads are logged and skipped; mods whose file did not arrive keep
their previous manifest entry untouched.`,
	RunE: runSync,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which mods would be updated, without downloading",
	RunE:  runPlan,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded update runs",
	RunE:  runHistory,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Create the config file and show where to fill it in",
	RunE:  runConfigure,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fmu %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/fmu/config.json)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v debug, -vv trace)")

	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick updates to apply before downloading")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, target, err := loadConfigAndVersion()
	if err != nil {
		return err
	}

	// One manifest, one writer at a time.
	lock := flock.New(cfg.ModPacksPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire manifest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another fmu instance is already running")
	}
	defer lock.Unlock()

	client, err := newPortalClient(cfg)
	if err != nil {
		return err
	}

	jnl := openJournal(ctx)
	if jnl != nil {
		defer jnl.Close()
	}

	opts := updater.Options{DryRun: dryRun}
	if interactive {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("--interactive requires a terminal")
		}
		opts.Select = selector.SelectUpdates
	}

	u := updater.New(client, jnl, cfg.ModPacksPath, cfg.ModsDir)
	report, err := u.Run(ctx, target, opts)
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, target, err := loadConfigAndVersion()
	if err != nil {
		return err
	}

	client, err := newPortalClient(cfg)
	if err != nil {
		return err
	}

	u := updater.New(client, nil, cfg.ModPacksPath, cfg.ModsDir)
	updates, err := u.Plan(ctx, target)
	if err != nil {
		return err
	}

	if len(updates) == 0 {
		fmt.Printf("All mods are up to date for Factorio %s\n", target)
		return nil
	}

	fmt.Println(planTable(updates))
	fmt.Printf("%d update(s) pending. Run 'fmu sync' to apply.\n", len(updates))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	jnl := openJournal(ctx)
	if jnl == nil {
		return fmt.Errorf("failed to open run journal")
	}
	defer jnl.Close()

	runs, err := jnl.ListRuns(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.FactorioVersion,
			strconv.Itoa(run.Planned),
			strconv.Itoa(run.Succeeded),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.PacksUpdated),
		})
	}

	fmt.Println(renderTable(
		[]string{"Started", "Factorio", "Planned", "Succeeded", "Failed", "Packs"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return nil
}

func runConfigure(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists: %s\n", path)
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Fill in the <FILL IN> fields and run 'fmu sync'.")
	return nil
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

func loadConfigAndVersion() (*config.Config, string, error) {
	path, err := configPath()
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ValidatePaths(); err != nil {
		return nil, "", err
	}

	full, err := factorio.ReadVersion(cfg.FactorioVersionFile)
	if err != nil {
		return nil, "", err
	}
	target, err := factorio.MajorMinor(full)
	if err != nil {
		return nil, "", err
	}

	log := logging.GetLogger("main")
	log.Info().Str("version", target).Msg("Factorio version")
	return cfg, target, nil
}

func newPortalClient(cfg *config.Config) (portal.Client, error) {
	cachePath, err := config.CacheFile()
	if err != nil {
		// The cache is a debug aid; run without it rather than failing.
		log := logging.GetLogger("main")
		log.Warn().Err(err).Msg("Catalog cache disabled")
		cachePath = ""
	}
	return portal.NewClient(cfg.ModsAPIURL, cachePath, cfg.Username, cfg.Token,
		portal.WithUserAgent("fmu/"+version)), nil
}

// openJournal opens the run journal. The journal is observability only, so
// any failure here downgrades to a warning and a nil journal.
func openJournal(ctx context.Context) journal.Journal {
	log := logging.GetLogger("main")

	dbPath, err := config.DataFile("journal.db")
	if err != nil {
		log.Warn().Err(err).Msg("Run journal disabled")
		return nil
	}

	jnl, err := journal.NewLibSQL("file:" + dbPath)
	if err != nil {
		log.Warn().Err(err).Msg("Run journal disabled")
		return nil
	}
	if err := jnl.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("Run journal disabled")
		jnl.Close()
		return nil
	}

	return jnl
}

func planTable(updates []updater.Update) string {
	rows := make([][]string, 0, len(updates))
	for _, up := range updates {
		rows = append(rows, []string{up.PackName, up.ModName, up.OldVersion, up.NewVersion, up.FileName})
	}
	return renderTable(
		[]string{"Pack", "Mod", "Installed", "Latest", "File"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func printReport(report *updater.Report) {
	if len(report.Updates) == 0 {
		fmt.Printf("All mods are up to date for Factorio %s\n", report.FactorioVersion)
		return
	}

	fmt.Println(planTable(report.Updates))

	if report.DryRun {
		fmt.Printf("Dry run: %d update(s) pending, nothing changed.\n", len(report.Updates))
		return
	}

	if report.Succeeded == 0 {
		fmt.Println("No mods were downloaded successfully; manifest unchanged.")
		return
	}

	fmt.Printf("Updated %d mod(s) across %d pack(s).\n", report.Succeeded, report.PacksUpdated)
	for _, name := range report.FailedMods {
		fmt.Printf("  failed: %s (kept previous version)\n", name)
	}
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
