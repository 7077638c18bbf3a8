package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dikkadev/fmu/pkg/journal"
	"github.com/dikkadev/fmu/pkg/logging"
	"github.com/dikkadev/fmu/pkg/manifest"
	"github.com/dikkadev/fmu/pkg/portal"
)

// systemMods ship with the game and are never updated through the portal
var systemMods = map[string]struct{}{
	"base":           {},
	"space-age":      {},
	"quality":        {},
	"elevated-rails": {},
}

// Update represents one planned mod update
type Update struct {
	PackName    string
	ModName     string
	OldVersion  string
	NewVersion  string
	NewSHA1     string
	DownloadURL string
	FileName    string
}

// Options represents update run options
type Options struct {
	// DryRun stops after planning; nothing is downloaded or written
	DryRun bool
	// Select, when set, narrows the plan before downloading (e.g., an
	// interactive picker). Returning an empty slice cancels the run.
	Select func([]Update) ([]Update, error)
}

// Report summarizes an update run
type Report struct {
	FactorioVersion string
	Updates         []Update // planned updates (after selection)
	FailedMods      []string // mod names excluded by a failed download
	Succeeded       int      // mods whose new version was committed
	PacksUpdated    int      // packs with at least one rewritten entry
	DryRun          bool
}

// Updater runs the update pipeline: catalog fetch, diff, download, commit
type Updater struct {
	client       portal.Client
	journal      journal.Journal // may be nil
	manifestPath string
	modsDir      string
	log          zerolog.Logger
}

// New creates an Updater. jnl may be nil to disable run history recording.
func New(client portal.Client, jnl journal.Journal, manifestPath, modsDir string) *Updater {
	return &Updater{
		client:       client,
		journal:      jnl,
		manifestPath: manifestPath,
		modsDir:      modsDir,
		log:          logging.GetLogger("updater"),
	}
}

// FindUpdates computes the updates required to bring the manifest in line
// with the catalog index. A mod qualifies when its pack targets the given
// major.minor version, it is enabled, it is not a system mod, the catalog
// knows it, and its (version, sha1) pair differs from the catalog's latest.
// Output order follows pack order then mod order; a mod present in two
// eligible packs yields two entries.
func FindUpdates(packs []*manifest.Pack, index map[string]*portal.Release, factorioVersion string) []Update {
	log := logging.GetLogger("updater")
	var updates []Update

	for _, pack := range packs {
		if majorMinor(pack.FactorioVersion) != factorioVersion {
			continue
		}

		for _, mod := range pack.Mods {
			if _, system := systemMods[mod.Name]; system {
				continue
			}
			if !mod.Enabled {
				continue
			}

			latest, ok := index[mod.Name]
			if !ok {
				log.Warn().Str("mod", mod.Name).Str("pack", pack.Name).Msg("Mod not found in catalog")
				continue
			}

			// Exact string comparison on both fields: a changed sha1 at
			// the same version string still counts as an update.
			if mod.Version == latest.Version && mod.SHA1 == latest.SHA1 {
				continue
			}

			updates = append(updates, Update{
				PackName:    pack.Name,
				ModName:     mod.Name,
				OldVersion:  mod.Version,
				NewVersion:  latest.Version,
				NewSHA1:     latest.SHA1,
				DownloadURL: latest.DownloadURL,
				FileName:    latest.FileName,
			})
		}
	}

	return updates
}

// Plan computes the update list without downloading anything
func (u *Updater) Plan(ctx context.Context, factorioVersion string) ([]Update, error) {
	resp, err := u.client.FetchMods(ctx, factorioVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mod catalog: %w", err)
	}
	index := portal.BuildIndex(resp)
	u.log.Info().Int("mods", len(index)).Msg("Indexed mod catalog")

	packs, err := manifest.Load(u.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	return FindUpdates(packs, index, factorioVersion), nil
}

// Run executes the full pipeline for the given major.minor version. Failed
// downloads are skipped, not retried; the manifest is only rewritten for
// mods whose file actually landed in the mods directory. "No updates" and
// "nothing downloaded" are non-error outcomes.
func (u *Updater) Run(ctx context.Context, factorioVersion string, opts Options) (*Report, error) {
	started := time.Now()

	resp, err := u.client.FetchMods(ctx, factorioVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mod catalog: %w", err)
	}
	index := portal.BuildIndex(resp)
	u.log.Info().Int("mods", len(index)).Msg("Indexed mod catalog")

	packs, err := manifest.Load(u.manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	updates := FindUpdates(packs, index, factorioVersion)
	report := &Report{FactorioVersion: factorioVersion, Updates: updates, DryRun: opts.DryRun}

	if len(updates) == 0 {
		u.log.Info().Msg("No updates - all mods are up to date")
		u.record(ctx, started, report)
		return report, nil
	}

	u.log.Info().Int("count", len(updates)).Msg("Found updates")
	for _, up := range updates {
		u.log.Info().
			Str("mod", up.ModName).
			Str("from", up.OldVersion).
			Str("to", up.NewVersion).
			Str("pack", up.PackName).
			Msg("Update planned")
	}

	if opts.DryRun {
		return report, nil
	}

	if opts.Select != nil {
		updates, err = opts.Select(updates)
		if err != nil {
			return nil, fmt.Errorf("failed to select updates: %w", err)
		}
		report.Updates = updates
		if len(updates) == 0 {
			u.log.Info().Msg("No updates selected")
			return report, nil
		}
	}

	scratch, err := os.MkdirTemp("", "factorio-mods-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)
	u.log.Debug().Str("dir", scratch).Msg("Created scratch directory")

	files, succeeded := u.downloadAll(ctx, updates, scratch)
	report.FailedMods = failedMods(updates, succeeded)

	if len(succeeded) == 0 {
		u.log.Error().Msg("No mods were downloaded successfully")
		u.record(ctx, started, report)
		return report, nil
	}

	packsUpdated, err := u.commit(packs, files, succeeded)
	if err != nil {
		return nil, err
	}

	report.Succeeded = len(succeeded)
	report.PacksUpdated = packsUpdated
	u.log.Info().
		Int("mods", len(succeeded)).
		Int("packs", packsUpdated).
		Msg("Updated manifest")

	u.record(ctx, started, report)
	return report, nil
}

// downloadState tags the single download attempt shared by every update
// referencing the same file name
type downloadState int

const (
	downloadSucceeded downloadState = iota + 1
	downloadFailed
)

type downloadResult struct {
	state downloadState
	path  string
}

// downloadAll downloads each distinct file once and maps outcomes back to
// mods. Returns the scratch paths of downloaded files keyed by file name and
// the set of mods whose file is available, keyed by mod name.
func (u *Updater) downloadAll(ctx context.Context, updates []Update, scratch string) (map[string]string, map[string]Update) {
	results := make(map[string]downloadResult)
	files := make(map[string]string)
	succeeded := make(map[string]Update)

	for _, up := range updates {
		res, attempted := results[up.FileName]
		if !attempted {
			release := &portal.Release{
				Version:     up.NewVersion,
				SHA1:        up.NewSHA1,
				DownloadURL: up.DownloadURL,
				FileName:    up.FileName,
			}

			path, err := u.client.DownloadRelease(ctx, release, scratch)
			if err != nil {
				u.log.Error().Err(err).Str("mod", up.ModName).Msg("Failed to download")
				res = downloadResult{state: downloadFailed}
			} else {
				res = downloadResult{state: downloadSucceeded, path: path}
				files[up.FileName] = path
			}
			results[up.FileName] = res
		}

		if res.state == downloadSucceeded {
			succeeded[up.ModName] = up
		}
	}

	return files, succeeded
}

// commit moves downloaded files into the mods directory, archives the
// manifest, applies the new versions and saves. The archive must exist
// before the manifest is rewritten; any failure here aborts the run.
func (u *Updater) commit(packs []*manifest.Pack, files map[string]string, succeeded map[string]Update) (int, error) {
	for fileName, tmpPath := range files {
		dest := filepath.Join(u.modsDir, fileName)
		if err := moveFile(tmpPath, dest); err != nil {
			return 0, fmt.Errorf("failed to move %s into mods directory: %w", fileName, err)
		}
		u.log.Info().Str("file", fileName).Str("dest", dest).Msg("Moved into mods directory")
	}

	archivePath, err := manifest.Archive(u.manifestPath)
	if err != nil {
		return 0, fmt.Errorf("failed to archive manifest: %w", err)
	}
	u.log.Info().Str("archive", archivePath).Msg("Archived manifest")

	packsUpdated := applyUpdates(packs, succeeded)

	if err := manifest.Save(u.manifestPath, packs); err != nil {
		return 0, fmt.Errorf("failed to save manifest: %w", err)
	}

	return packsUpdated, nil
}

// applyUpdates rewrites version and sha1 for every mod in the success set
// and stamps changed packs with the current time in milliseconds
func applyUpdates(packs []*manifest.Pack, succeeded map[string]Update) int {
	nowMs := time.Now().UnixMilli()
	packsUpdated := 0

	for _, pack := range packs {
		changed := false
		for i := range pack.Mods {
			up, ok := succeeded[pack.Mods[i].Name]
			if !ok {
				continue
			}
			pack.Mods[i].Version = up.NewVersion
			pack.Mods[i].SHA1 = up.NewSHA1
			changed = true
		}

		if changed {
			pack.UpdatedAtMs = nowMs
			packsUpdated++
		}
	}

	return packsUpdated
}

// record writes the run to the journal; journal failures are logged and
// never fail the run
func (u *Updater) record(ctx context.Context, started time.Time, report *Report) {
	if u.journal == nil {
		return
	}

	failed := make(map[string]struct{}, len(report.FailedMods))
	for _, name := range report.FailedMods {
		failed[name] = struct{}{}
	}

	results := make([]journal.ModResult, 0, len(report.Updates))
	for _, up := range report.Updates {
		_, isFailed := failed[up.ModName]
		results = append(results, journal.ModResult{
			Pack:       up.PackName,
			Mod:        up.ModName,
			OldVersion: up.OldVersion,
			NewVersion: up.NewVersion,
			Succeeded:  !isFailed,
		})
	}

	run := &journal.Run{
		ID:              uuid.NewString(),
		StartedAt:       started,
		FactorioVersion: report.FactorioVersion,
		Planned:         len(report.Updates),
		Succeeded:       report.Succeeded,
		Failed:          len(report.FailedMods),
		PacksUpdated:    report.PacksUpdated,
	}

	if err := u.journal.RecordRun(ctx, run, results); err != nil {
		u.log.Warn().Err(err).Msg("Failed to record run in journal")
	}
}

// failedMods lists the distinct mod names excluded by a failed download
func failedMods(updates []Update, succeeded map[string]Update) []string {
	var failed []string
	seen := make(map[string]struct{})

	for _, up := range updates {
		if _, ok := succeeded[up.ModName]; ok {
			continue
		}
		if _, dup := seen[up.ModName]; dup {
			continue
		}
		seen[up.ModName] = struct{}{}
		failed = append(failed, up.ModName)
	}

	return failed
}

// majorMinor reduces a pack's factorio_version to its major.minor prefix
func majorMinor(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}
