// Package local persists validated records as JSON files under a period-partitioned tree.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/lexharvest/internal/harvest"
)

const (
	dirPerm      = 0o750
	filePerm     = 0o600
	recordExt    = ".json"
	tempPrefix   = ".tmp-"
	writableTest = ".writable_test"
)

// Config captures the parameters for the local record store.
type Config struct {
	// Root is the directory under which the YYYY/MM/YYYYMMDD tree is built.
	Root string `mapstructure:"root" yaml:"root"`
}

// MetadataValidator gates records before they reach disk.
type MetadataValidator interface {
	Validate(md *harvest.Metadata) error
}

// ScanFunc receives each record file found by Scan. decodeErr is set when the file could not be
// read or decoded; rec is nil in that case. Returning an error stops the walk.
type ScanFunc func(loc harvest.Location, rec *harvest.Record, decodeErr error) error

// Store writes records to the local filesystem.
type Store struct {
	root      string
	validator MetadataValidator
	logger    *zap.Logger
}

// New creates the root directory if needed and verifies it is writable.
func New(cfg Config, validator MetadataValidator, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("%w: storage root is required", harvest.ErrStorage)
	}
	if validator == nil {
		return nil, fmt.Errorf("metadata validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root := filepath.Clean(cfg.Root)
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(root, dirPerm); mkErr != nil {
			return nil, fmt.Errorf("%w: create storage root: %w", harvest.ErrStorage, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: stat storage root: %w", harvest.ErrStorage, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: storage root %s is not a directory", harvest.ErrStorage, root)
	}

	probe := filepath.Join(root, writableTest)
	if err := os.WriteFile(probe, []byte("test"), filePerm); err != nil {
		return nil, fmt.Errorf("%w: storage root is not writable: %w", harvest.ErrStorage, err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("%w: clean up probe file: %w", harvest.ErrStorage, err)
	}

	return &Store{root: root, validator: validator, logger: logger}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// Path computes root/YYYY/MM/periodID/id.json. It never touches the filesystem.
func (s *Store) Path(period harvest.Period, periodID string, id harvest.Identifier) harvest.Location {
	return harvest.Location(filepath.Join(s.root, period.Year(), period.Month(), periodID, id.String()+recordExt))
}

// EnsureContainer creates the directory that will hold loc.
func (s *Store) EnsureContainer(loc harvest.Location) error {
	if err := os.MkdirAll(filepath.Dir(loc.String()), dirPerm); err != nil {
		return fmt.Errorf("%w: create container for %s: %w", harvest.ErrStorage, loc, err)
	}
	return nil
}

// Store validates rec and writes it atomically to its period location. A partially written file
// is never observable under the final name.
func (s *Store) Store(
	_ context.Context,
	rec *harvest.Record,
	period harvest.Period,
	periodID string,
	id harvest.Identifier,
) (harvest.Location, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: record is nil", harvest.ErrValidation)
	}
	if err := s.validator.Validate(&rec.Metadata); err != nil {
		return "", err
	}
	loc, err := s.locate(period, periodID, id)
	if err != nil {
		return "", err
	}
	if err := s.EnsureContainer(loc); err != nil {
		return "", err
	}

	payload, err := Encode(rec)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", harvest.ErrStorage, id, err)
	}
	if err := writeAtomic(loc.String(), payload); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", harvest.ErrStorage, loc, err)
	}

	s.logger.Info("record stored",
		zap.String("logical_key", rec.Metadata.LogicalKey),
		zap.String("identifier", id.String()),
		zap.String("location", loc.String()),
		zap.Int("bytes", len(payload)),
	)
	return loc, nil
}

// Exists reports whether a record is already stored for the given period and identifier.
func (s *Store) Exists(period harvest.Period, periodID string, id harvest.Identifier) (bool, error) {
	loc, err := s.locate(period, periodID, id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(loc.String())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", harvest.ErrStorage, loc, err)
	}
}

// Load reads a stored record. It returns nil, nil when nothing is stored at the location.
func (s *Store) Load(period harvest.Period, periodID string, id harvest.Identifier) (*harvest.Record, error) {
	loc, err := s.locate(period, periodID, id)
	if err != nil {
		return nil, err
	}
	rec, err := ReadRecord(loc)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rec, err
}

// Scan walks every record file under the root in lexical order. Hidden and temporary files are
// skipped. Entries below the root that cannot be read are handed to fn as a decode error and
// their subtree is skipped; only a failure on the root itself ends the walk.
func (s *Store) Scan(ctx context.Context, fn ScanFunc) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			walkErr := fmt.Errorf("%w: walk %s: %w", harvest.ErrStorage, path, err)
			if path == s.root {
				return walkErr
			}
			if fnErr := fn(harvest.Location(path), nil, walkErr); fnErr != nil {
				return fnErr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isRecordFile(d.Name()) {
			return nil
		}
		loc := harvest.Location(path)
		rec, readErr := ReadRecord(loc)
		return fn(loc, rec, readErr)
	})
}

// Size returns the total number of bytes in files under the root.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: measure storage: %w", harvest.ErrStorage, err)
	}
	return total, nil
}

// Encode renders a record the way it is written to disk.
// Markup characters in content are written as-is so the files stay readable.
func Encode(rec *harvest.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadRecord decodes the record stored at loc. Missing files surface fs.ErrNotExist.
func ReadRecord(loc harvest.Location) (*harvest.Record, error) {
	data, err := os.ReadFile(loc.String())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %w", harvest.ErrStorage, loc, err)
	}
	var rec harvest.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", harvest.ErrParse, loc, err)
	}
	return &rec, nil
}

func (s *Store) locate(period harvest.Period, periodID string, id harvest.Identifier) (harvest.Location, error) {
	if period.IsZero() {
		return "", fmt.Errorf("%w: period is required", harvest.ErrInvalidPeriod)
	}
	if err := checkSegment("period id", periodID); err != nil {
		return "", err
	}
	if err := checkSegment("identifier", id.String()); err != nil {
		return "", err
	}
	loc := s.Path(period, periodID, id)
	rel, err := filepath.Rel(s.root, loc.String())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected for %s", harvest.ErrStorage, id)
	}
	return loc, nil
}

// checkSegment rejects values that would escape their directory level.
func checkSegment(name, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return fmt.Errorf("%w: %s is required", harvest.ErrStorage, name)
	case value == "." || value == "..", strings.ContainsAny(value, `/\`), strings.HasPrefix(value, "."):
		return fmt.Errorf("%w: path traversal detected in %s %q", harvest.ErrStorage, name, value)
	}
	return nil
}

func isRecordFile(name string) bool {
	return filepath.Ext(name) == recordExt && !strings.HasPrefix(name, ".")
}
