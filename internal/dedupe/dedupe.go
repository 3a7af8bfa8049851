// Package dedupe collapses records that share a logical key down to the earliest-period copy.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
	"github.com/JakeFAU/lexharvest/internal/storage/local"
)

// Store is the slice of the record store the deduplicator needs.
type Store interface {
	Root() string
	Scan(ctx context.Context, fn local.ScanFunc) error
}

// Options tunes a deduplication run.
type Options struct {
	// BackupDir receives superseded copies under their root-relative path. Empty deletes them.
	BackupDir string
}

// KeyError is a failure scoped to one logical key. Other keys are still processed.
type KeyError struct {
	LogicalKey string
	Location   harvest.Location
	Err        error
}

// Error implements error.
func (e KeyError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.LogicalKey, e.Location, e.Err)
}

// Unwrap exposes the underlying error.
func (e KeyError) Unwrap() error {
	return e.Err
}

// Report summarises a deduplication run.
type Report struct {
	Scanned     int
	Unreadable  int
	Groups      int
	Retained    int
	Moved       int
	Removed     int
	Excluded    int
	SkippedKeys []string
	RemovedDirs int
	Errors      []KeyError
}

// Deduplicator resolves duplicate records in a store.
type Deduplicator struct {
	store  Store
	logger *zap.Logger
}

type copyEntry struct {
	loc  harvest.Location
	date time.Time
}

// New constructs a Deduplicator.
func New(store Store, logger *zap.Logger) (*Deduplicator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{store: store, logger: logger}, nil
}

// Run scans the store, keeps the earliest-period copy of every duplicated logical key and moves
// or deletes the rest, then prunes empty directories below the root.
//
// The earliest capture wins even though the catalog may have revised the page since; a later copy
// can be the more accurate one. Use a backup dir when that matters.
func (d *Deduplicator) Run(ctx context.Context, opts Options) (Report, error) {
	var report Report
	root := filepath.Clean(d.store.Root())

	backup := strings.TrimSpace(opts.BackupDir)
	if backup != "" {
		if err := checkBackupDir(root, backup); err != nil {
			return report, err
		}
		if err := os.MkdirAll(backup, 0o750); err != nil {
			return report, fmt.Errorf("%w: create backup dir: %w", harvest.ErrStorage, err)
		}
	}

	groups := make(map[string][]harvest.Location)
	err := d.store.Scan(ctx, func(loc harvest.Location, rec *harvest.Record, decodeErr error) error {
		if decodeErr != nil {
			report.Unreadable++
			d.logger.Error("skipping unreadable record", zap.String("location", loc.String()), zap.Error(decodeErr))
			return nil
		}
		report.Scanned++
		key := rec.Metadata.LogicalKey
		if key == "" {
			return nil
		}
		groups[key] = append(groups[key], loc)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scan records: %w", err)
	}

	keys := make([]string, 0, len(groups))
	for key, locs := range groups {
		if len(locs) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	report.Groups = len(keys)
	if len(keys) == 0 {
		d.logger.Info("no duplicates found", zap.Int("scanned", report.Scanned))
	} else {
		d.logger.Info("found duplicated documents", zap.Int("groups", len(keys)))
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d.resolve(root, backup, key, groups[key], &report)
	}

	report.RemovedDirs = d.pruneEmptyDirs(root)
	d.logger.Info("deduplication complete",
		zap.Int("groups", report.Groups),
		zap.Int("moved", report.Moved),
		zap.Int("removed", report.Removed),
		zap.Int("excluded", report.Excluded),
		zap.Int("errors", len(report.Errors)),
		zap.Int("removed_dirs", report.RemovedDirs),
	)
	return report, nil
}

func (d *Deduplicator) resolve(root, backup, key string, locs []harvest.Location, report *Report) {
	copies := make([]copyEntry, 0, len(locs))
	for _, loc := range locs {
		date, err := periodOf(loc)
		if err != nil {
			report.Excluded++
			d.logger.Error("excluding copy with unparseable period directory",
				zap.String("logical_key", key), zap.String("location", loc.String()), zap.Error(err))
			continue
		}
		copies = append(copies, copyEntry{loc: loc, date: date})
	}
	if len(copies) == 0 {
		report.SkippedKeys = append(report.SkippedKeys, key)
		d.logger.Error("no dated copies, skipping", zap.String("logical_key", key))
		return
	}

	sort.SliceStable(copies, func(i, j int) bool { return copies[i].date.Before(copies[j].date) })
	kept := copies[0]
	report.Retained++
	d.logger.Info("keeping earliest copy",
		zap.String("logical_key", key),
		zap.String("location", kept.loc.String()),
		zap.String("period_id", kept.date.Format(harvest.PeriodIDLayout)),
	)

	for _, dup := range copies[1:] {
		if backup != "" {
			dest, err := d.backupCopy(root, backup, dup.loc)
			if err != nil {
				report.Errors = append(report.Errors, KeyError{LogicalKey: key, Location: dup.loc, Err: err})
				d.logger.Error("moving duplicate failed", zap.String("logical_key", key), zap.Error(err))
				continue
			}
			report.Moved++
			d.logger.Info("moved duplicate",
				zap.String("logical_key", key), zap.String("from", dup.loc.String()), zap.String("to", dest))
			continue
		}
		if err := os.Remove(dup.loc.String()); err != nil {
			report.Errors = append(report.Errors, KeyError{LogicalKey: key, Location: dup.loc, Err: err})
			d.logger.Error("removing duplicate failed", zap.String("logical_key", key), zap.Error(err))
			continue
		}
		report.Removed++
		d.logger.Info("removed duplicate", zap.String("logical_key", key), zap.String("location", dup.loc.String()))
	}
}

func (d *Deduplicator) backupCopy(root, backup string, loc harvest.Location) (string, error) {
	rel, err := filepath.Rel(root, loc.String())
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	dest := filepath.Join(backup, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create backup container: %w", err)
	}
	if err := move(loc.String(), dest); err != nil {
		return "", err
	}
	return dest, nil
}

// pruneEmptyDirs removes empty directories deepest first. The root itself is kept.
func (d *Deduplicator) pruneEmptyDirs(root string) int {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("walking storage for empty directories failed", zap.Error(err))
	}

	removed := 0
	for _, dir := range slices.Backward(dirs) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			d.logger.Error("removing empty directory failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
		d.logger.Debug("removed empty directory", zap.String("dir", dir))
	}
	return removed
}

// periodOf parses the YYYYMMDD period directory that holds loc.
func periodOf(loc harvest.Location) (time.Time, error) {
	name := filepath.Base(filepath.Dir(loc.String()))
	if len(name) != len(harvest.PeriodIDLayout) {
		return time.Time{}, fmt.Errorf("directory %q is not a period id", name)
	}
	date, err := time.Parse(harvest.PeriodIDLayout, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("directory %q is not a period id: %w", name, err)
	}
	return date, nil
}

func checkBackupDir(root, backup string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: resolve storage root: %w", harvest.ErrStorage, err)
	}
	absBackup, err := filepath.Abs(backup)
	if err != nil {
		return fmt.Errorf("%w: resolve backup dir: %w", harvest.ErrStorage, err)
	}
	rel, err := filepath.Rel(absRoot, absBackup)
	if err == nil && (rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))) {
		return fmt.Errorf("%w: backup dir %s must be outside storage root %s", harvest.ErrStorage, backup, root)
	}
	return nil
}

// move renames src to dst, copying across filesystems when a rename is not possible.
func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// #nosec G304 -- src comes from a scan of the storage root.
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 -- dst is built under the operator supplied backup dir.
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Join(fmt.Errorf("copy %s: %w", src, err), os.Remove(dst))
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}
