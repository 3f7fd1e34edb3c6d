package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"zinga/models"
)

var backupNamePattern = regexp.MustCompile(`^backup-(\d+)\.json$`)

// BackupInfo describes one timestamped backup file.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds from the file name
	Date      time.Time `json:"date"`
}

// RestoreResult is returned by RestoreBackup.
type RestoreResult struct {
	Success     bool  `json:"success"`
	ModuleCount int   `json:"moduleCount"`
	UserCount   int   `json:"userCount"`
	Version     int64 `json:"version"`
}

// RetentionPolicy bounds the number and age of timestamped backups.
// Zero values disable the corresponding limit.
type RetentionPolicy struct {
	Keep   int
	MaxAge time.Duration
}

// Retention returns the policy configured for this store.
func (s *Store) Retention() RetentionPolicy {
	return RetentionPolicy{Keep: s.config.BackupKeep, MaxAge: s.config.BackupMaxAge}
}

// ListBackups returns the timestamped backups, newest first. The sidecar and
// pre-restore snapshots are not listed.
func (s *Store) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.config.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := backupNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  e.Name(),
			Timestamp: ms,
			Date:      time.UnixMilli(ms).UTC(),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp > backups[j].Timestamp
	})
	return backups, nil
}

// RestoreBackup replaces the live document with the named backup. The name is
// reduced to its base name and must look like backup-<digits>.json; nothing
// outside the data directory is ever opened. The current live document is
// kept as pre-restore-backup-<ms>.json.
func (s *Store) RestoreBackup(ctx context.Context, filename string) (RestoreResult, error) {
	if err := ctx.Err(); err != nil {
		return RestoreResult{}, err
	}
	name := filepath.Base(filename)
	if !backupNamePattern.MatchString(name) {
		return RestoreResult{}, fmt.Errorf("%w: %q", ErrInvalidBackupName, filename)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.config.DataDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RestoreResult{}, fmt.Errorf("%w: %s", ErrBackupNotFound, name)
		}
		return RestoreResult{}, fmt.Errorf("reading backup %s: %w", name, err)
	}
	doc, dropped, err := decodeLive(data)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("backup %s: %w", name, err)
	}

	var liveVersion int64
	prior, err := os.ReadFile(s.livePath())
	switch {
	case err == nil:
		snapshot, err := s.writeSnapshot(preRestorePrefix, prior)
		if err != nil {
			return RestoreResult{}, fmt.Errorf("writing pre-restore snapshot: %w", err)
		}
		s.log.Info().Str("file", snapshot).Msg("pre-restore snapshot created")
		if live, _, err := models.DecodeAppData(prior); err == nil {
			liveVersion = live.Version
		}
	case !errors.Is(err, os.ErrNotExist):
		return RestoreResult{}, fmt.Errorf("reading live document: %w", err)
	}

	// The restored content gets a fresh version so clients holding the
	// replaced one are refused.
	now := s.now().UTC()
	doc.Version = max(liveVersion, doc.Version) + 1
	doc.LastUpdated = &now
	if err := s.commitLocked(doc, dropped); err != nil {
		return RestoreResult{}, err
	}

	s.log.Info().Str("file", name).Int("modules", len(doc.Modules)).Int("users", len(doc.Users)).Int64("version", doc.Version).Msg("backup restored")
	return RestoreResult{Success: true, ModuleCount: len(doc.Modules), UserCount: len(doc.Users), Version: doc.Version}, nil
}

// PruneBackups deletes timestamped backups beyond policy.Keep (newest kept)
// and those older than policy.MaxAge. It returns the removed file names.
func (s *Store) PruneBackups(ctx context.Context, policy RetentionPolicy) ([]string, error) {
	if policy.Keep <= 0 && policy.MaxAge <= 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	removed := []string{}
	var errs []error
	for i, b := range backups {
		expired := policy.MaxAge > 0 && now.Sub(b.Date) > policy.MaxAge
		overflow := policy.Keep > 0 && i >= policy.Keep
		if !expired && !overflow {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.DataDir, b.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, b.Filename)
	}

	s.metrics.BackupsPruned(len(removed))
	if len(removed) > 0 {
		s.log.Info().Int("removed", len(removed)).Int("kept", len(backups)-len(removed)).Msg("old backups pruned")
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("pruning backups: %w", err)
	}
	return removed, nil
}

// Reset backs up the live document and replaces it with the seed data. The
// sidecar keeps the last catalog that had modules.
func (s *Store) Reset(ctx context.Context) (*models.AppData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	prior, err := os.ReadFile(s.livePath())
	switch {
	case err == nil:
		if _, err := s.backupLocked(prior); err != nil {
			return nil, err
		}
		if doc, _, err := models.DecodeAppData(prior); err == nil {
			version = doc.Version
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading live document: %w", err)
	}

	seed, err := s.seedDocument()
	if err != nil {
		return nil, err
	}
	seed.Version = version + 1
	data, err := marshalDocument(seed)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.livePath(), data); err != nil {
		return nil, fmt.Errorf("writing live document: %w", err)
	}
	s.log.Warn().Int64("version", seed.Version).Msg("document reset to defaults")
	return seed, nil
}
