package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"zinga/config"
	"zinga/logger"
	"zinga/metrics"
	"zinga/models"
	"zinga/utils"
)

// File names inside the data directory.
const (
	LiveFileName     = "global-app-data.json"
	SidecarFileName  = "backup-permanent.json"
	backupPrefix     = "backup-"
	preRestorePrefix = "pre-restore-backup-"
	quarantinePrefix = "quarantine-"
)

// Store persists the application document as a single JSON file in the data
// directory, next to its timestamped backups and the permanent sidecar.
//
// Every mutation runs under mu. Readers take no lock: the live file is only
// ever replaced by rename, so a reader sees either the old or the new bytes.
type Store struct {
	config  *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	now func() time.Time

	strictText *bluemonday.Policy // titles and names
	richText   *bluemonday.Policy // descriptions
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly so tests get predictable backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore prepares the data directory and loads the live document, creating
// it from the sidecar or the seed data when it does not exist yet.
// A corrupt live document is logged but does not prevent startup, so that an
// operator can still list and restore backups.
func NewStore(cfg *config.Config, log *logger.Logger, m *metrics.Metrics, opts ...Option) (*Store, error) {
	s := &Store{
		config:     cfg,
		log:        log.Component("store"),
		metrics:    m,
		now:        time.Now,
		strictText: bluemonday.StrictPolicy(),
		richText:   bluemonday.UGCPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir '%s': %w", cfg.DataDir, err)
	}

	s.log.Info().Str("data_dir", cfg.DataDir).Msg("initializing store")
	if _, err := s.Load(context.Background()); err != nil {
		if !errors.Is(err, ErrCorruptDocument) {
			return nil, err
		}
		s.log.Error().Err(err).Msg("live document is corrupt; restore a backup or reset")
	}
	return s, nil
}

// DataDir returns the directory holding the live document and its backups.
func (s *Store) DataDir() string {
	return s.config.DataDir
}

func (s *Store) livePath() string    { return filepath.Join(s.config.DataDir, LiveFileName) }
func (s *Store) sidecarPath() string { return filepath.Join(s.config.DataDir, SidecarFileName) }

// LoadRaw returns the live document bytes exactly as stored. Two calls with
// no write in between return identical bytes.
func (s *Store) LoadRaw(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.livePath())
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading live document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLiveLocked()
}

// Load returns the typed view of the live document. Records that fail
// validation are logged and left out.
func (s *Store) Load(ctx context.Context) (*models.AppData, error) {
	doc, _, err := s.LoadWithReport(ctx)
	return doc, err
}

// LoadWithReport is Load that also returns the records it had to set aside.
func (s *Store) LoadWithReport(ctx context.Context) (*models.AppData, []models.Quarantined, error) {
	data, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, nil, err
	}
	doc, bad, err := decodeLive(data)
	if err != nil {
		return nil, nil, err
	}
	for _, q := range bad {
		s.log.Warn().
			Str("collection", q.Collection).
			Int("index", q.Index).
			Str("reason", q.Reason).
			Msg("quarantined malformed record")
	}
	return doc, bad, nil
}

// LoadDocument returns the live document as a generic JSON object, keeping
// records the typed view would drop.
func (s *Store) LoadDocument(ctx context.Context) (map[string]json.RawMessage, error) {
	data, err := s.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is null", ErrCorruptDocument)
	}
	return doc, nil
}

// RedactPasswords removes the password field from every user object in doc.
// A users value that is not an array, and entries that are not objects, are
// left as they are.
func RedactPasswords(doc map[string]json.RawMessage) error {
	raw, ok := doc[models.CollectionUsers]
	if !ok {
		return nil
	}
	var users []json.RawMessage
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil
	}
	for i, item := range users {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		if _, ok := fields["password"]; !ok {
			continue
		}
		delete(fields, "password")
		redacted, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encoding user %d: %w", i, err)
		}
		users[i] = redacted
	}
	out, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("encoding users: %w", err)
	}
	doc[models.CollectionUsers] = out
	return nil
}

// readLiveLocked returns the live bytes. When the live file is missing it is
// recreated from the sidecar verbatim, or from the seed data if there is no
// sidecar either. Caller holds s.mu.
func (s *Store) readLiveLocked() ([]byte, error) {
	data, err := os.ReadFile(s.livePath())
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading live document: %w", err)
	}
	if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir '%s': %w", s.config.DataDir, err)
	}

	sidecar, err := os.ReadFile(s.sidecarPath())
	switch {
	case err == nil:
		if err := writeFileAtomic(s.livePath(), sidecar); err != nil {
			return nil, fmt.Errorf("restoring live document from sidecar: %w", err)
		}
		s.log.Warn().Str("file", SidecarFileName).Msg("live document missing, restored it from the permanent backup")
		return sidecar, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}

	seed, err := s.seedDocument()
	if err != nil {
		return nil, err
	}
	data, err = marshalDocument(seed)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(s.livePath(), data); err != nil {
		return nil, fmt.Errorf("writing seed document: %w", err)
	}
	s.log.Info().Int("modules", len(seed.Modules)).Msg("no live document or sidecar, wrote seed document")
	return data, nil
}

func (s *Store) seedDocument() (*models.AppData, error) {
	hash, err := utils.HashPassword(s.config.SeedAdminPassword, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing seed admin password: %w", err)
	}
	return models.Seed(s.now(), s.config.SeedAdminEmail, hash), nil
}

// commitLocked writes doc as the new live document. Records dropped from the
// previous document go to a quarantine file first, and the sidecar is
// refreshed when doc has modules. Caller holds s.mu.
func (s *Store) commitLocked(doc *models.AppData, dropped []models.Quarantined) error {
	if len(dropped) > 0 {
		name, err := s.writeQuarantine(dropped)
		if err != nil {
			return fmt.Errorf("writing quarantine file: %w", err)
		}
		s.log.Warn().Str("file", name).Int("records", len(dropped)).Msg("malformed records moved to quarantine")
	}

	data, err := marshalDocument(doc)
	if err != nil {
		return err
	}
	if len(doc.Modules) > 0 {
		s.refreshSidecar(data)
	}
	if err := writeFileAtomic(s.livePath(), data); err != nil {
		return fmt.Errorf("writing live document: %w", err)
	}
	return nil
}

// refreshSidecar overwrites the permanent backup. Failure is logged only.
func (s *Store) refreshSidecar(data []byte) {
	if err := writeFileAtomic(s.sidecarPath(), data); err != nil {
		s.metrics.SidecarRefreshed(false)
		s.log.Error().Err(err).Msg("failed to refresh permanent backup")
		return
	}
	s.metrics.SidecarRefreshed(true)
	s.log.Debug().Msg("permanent backup refreshed")
}

// backupLocked copies prior into a new backup-<ms>.json file.
func (s *Store) backupLocked(prior []byte) (string, error) {
	name, err := s.writeSnapshot(backupPrefix, prior)
	if err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	s.metrics.BackupCreated()
	s.log.Debug().Str("file", name).Msg("backup created")
	return name, nil
}

func (s *Store) writeQuarantine(records []models.Quarantined) (string, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", err
	}
	return s.writeSnapshot(quarantinePrefix, data)
}

// writeSnapshot creates <prefix><epoch-ms>.json holding data. If that name is
// taken the millisecond is bumped until a free name is found, so snapshots
// are never overwritten.
func (s *Store) writeSnapshot(prefix string, data []byte) (string, error) {
	ms := s.now().UnixMilli()
	for {
		name := fmt.Sprintf("%s%d.json", prefix, ms)
		f, err := os.OpenFile(filepath.Join(s.config.DataDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			ms++
			continue
		}
		if err != nil {
			return "", err
		}
		_, writeErr := f.Write(data)
		closeErr := f.Close()
		if err := errors.Join(writeErr, closeErr); err != nil {
			_ = os.Remove(f.Name())
			return "", err
		}
		return name, nil
	}
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func marshalDocument(doc *models.AppData) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return data, nil
}

func decodeLive(data []byte) (*models.AppData, []models.Quarantined, error) {
	doc, bad, err := models.DecodeAppData(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return doc, bad, nil
}
