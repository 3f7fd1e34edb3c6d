package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"time"

	"zinga/metrics"
	"zinga/models"
	"zinga/utils"
)

// SaveOptions tune a Save call.
type SaveOptions struct {
	// BaseVersion is the document version the client last read. When set and
	// different from the live version the save fails with ErrVersionConflict.
	// nil keeps last-writer-wins.
	BaseVersion *int64
}

// SaveResult is returned for an accepted save.
type SaveResult struct {
	Success     bool  `json:"success"`
	ModuleCount int   `json:"moduleCount"`
	Version     int64 `json:"version"`
}

// Save merges incoming into the live document and persists the result.
//
// The prior document is always copied to a timestamped backup first, even when
// the save is then rejected. A missing live file counts as an empty document. A save that would empty a non-empty guarded
// collection fails with ErrDestructiveSave and leaves the live file untouched.
func (s *Store) Save(ctx context.Context, incoming *models.AppData, opts SaveOptions) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A missing live file is an empty baseline: nothing to back up and
	// nothing for the guard to protect.
	existing := &models.AppData{}
	var dropped []models.Quarantined
	prior, err := os.ReadFile(s.livePath())
	switch {
	case err == nil:
		if _, err := s.backupLocked(prior); err != nil {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, err
		}
		existing, dropped, err = decodeLive(prior)
		if err != nil {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, err
		}
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
			return SaveResult{}, fmt.Errorf("creating data dir '%s': %w", s.config.DataDir, err)
		}
		s.log.Warn().Msg("no live document, saving against an empty baseline")
	default:
		s.metrics.ObserveSave(metrics.OutcomeFailed)
		return SaveResult{}, fmt.Errorf("reading live document: %w", err)
	}

	if err := s.guard(existing, incoming); err != nil {
		s.metrics.ObserveSave(metrics.OutcomeRejected)
		s.log.Warn().Err(err).Msg("save rejected")
		return SaveResult{}, err
	}
	if opts.BaseVersion != nil && *opts.BaseVersion != existing.Version {
		s.metrics.ObserveSave(metrics.OutcomeConflict)
		s.log.Warn().Int64("client_version", *opts.BaseVersion).Int64("live_version", existing.Version).Msg("save rejected, stale version")
		return SaveResult{}, fmt.Errorf("%w: client has version %d, current version is %d",
			ErrVersionConflict, *opts.BaseVersion, existing.Version)
	}

	merged := merge(existing, incoming, s.now())
	keepPasswords(merged.Users, existing.Users)
	if err := s.normalize(merged); err != nil {
		if errors.Is(err, ErrInvalidRecords) {
			s.metrics.ObserveSave(metrics.OutcomeRejected)
			s.log.Warn().Err(err).Msg("save rejected")
		} else {
			s.metrics.ObserveSave(metrics.OutcomeFailed)
		}
		return SaveResult{}, err
	}
	if err := s.commitLocked(merged, dropped); err != nil {
		s.metrics.ObserveSave(metrics.OutcomeFailed)
		return SaveResult{}, err
	}

	s.metrics.ObserveSave(metrics.OutcomeAccepted)
	s.log.Info().
		Int("modules", len(merged.Modules)).
		Int("users", len(merged.Users)).
		Int64("version", merged.Version).
		Msg("document saved")
	return SaveResult{Success: true, ModuleCount: len(merged.Modules), Version: merged.Version}, nil
}

// guard refuses saves that would replace a non-empty guarded collection with
// an empty or missing one.
func (s *Store) guard(existing, incoming *models.AppData) error {
	for _, name := range s.config.GuardedCollections {
		n := existing.CollectionLen(name)
		if n > 0 && incoming.CollectionLen(name) == 0 {
			return fmt.Errorf("%w: %s has %d record(s) on disk and the request sends none", ErrDestructiveSave, name, n)
		}
	}
	return nil
}

// merge builds the next document: each collection comes from incoming when it
// is non-empty and from existing otherwise. Settings and unknown top-level keys
// are merged key by key with incoming winning.
func merge(existing, incoming *models.AppData, now time.Time) *models.AppData {
	now = now.UTC()
	merged := &models.AppData{
		Users:       pick(incoming.Users, existing.Users),
		Modules:     pick(incoming.Modules, existing.Modules),
		Packages:    pick(incoming.Packages, existing.Packages),
		Purchases:   pick(incoming.Purchases, existing.Purchases),
		Auxiliary:   make(map[string][]json.RawMessage, len(models.AuxiliaryCollections)),
		Settings:    mergeKeys(existing.Settings, incoming.Settings),
		Extra:       mergeKeys(existing.Extra, incoming.Extra),
		LastSaved:   &now,
		LastUpdated: &now,
		Version:     existing.Version + 1,
	}
	for _, name := range models.AuxiliaryCollections {
		merged.Auxiliary[name] = pick(incoming.Auxiliary[name], existing.Auxiliary[name])
	}
	return merged
}

func pick[T any](incoming, existing []T) []T {
	if len(incoming) > 0 {
		return incoming
	}
	return existing
}

func mergeKeys(existing, incoming map[string]json.RawMessage) map[string]json.RawMessage {
	if len(existing) == 0 && len(incoming) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// keepPasswords gives users sent without a password the hash stored for the
// same id. Clients never see hashes, so they cannot echo them back.
func keepPasswords(users, existing []models.User) {
	hashes := make(map[string]string, len(existing))
	for _, u := range existing {
		if u.Password != "" {
			hashes[u.ID] = u.Password
		}
	}
	for i := range users {
		if users[i].Password == "" {
			users[i].Password = hashes[users[i].ID]
		}
	}
}

// normalize hashes plaintext passwords and strips markup from catalog text.
// It fails with ErrInvalidRecords when a record no longer validates afterwards.
func (s *Store) normalize(doc *models.AppData) error {
	for i := range doc.Users {
		u := &doc.Users[i]
		if u.Password == "" || utils.IsPasswordHash(u.Password) {
			continue
		}
		hash, err := utils.HashPassword(u.Password, s.config.BcryptCost)
		if err != nil {
			return fmt.Errorf("hashing password for user %s: %w", u.ID, err)
		}
		u.Password = hash
	}
	for i := range doc.Modules {
		m := &doc.Modules[i]
		m.Title = s.plainText(m.Title)
		m.Description = s.richText.Sanitize(m.Description)
	}
	for i := range doc.Packages {
		p := &doc.Packages[i]
		p.Name = s.plainText(p.Name)
		p.Description = s.richText.Sanitize(p.Description)
	}
	// A title made only of markup sanitizes to "" and would be quarantined by
	// the next load.
	if bad := doc.Validate(); len(bad) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecords, &models.InvalidRecordsError{Records: bad})
	}
	return nil
}

// plainText drops all markup but keeps characters like '&' readable.
func (s *Store) plainText(v string) string {
	return html.UnescapeString(s.strictText.Sanitize(v))
}

// mutate applies fn to the live document under the write lock. When fn reports
// a change the document is stamped, its version bumped and committed, with a
// timestamped backup of the prior bytes if withBackup is set.
func (s *Store) mutate(ctx context.Context, op string, withBackup bool, fn func(doc *models.AppData) (bool, error)) (*models.AppData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, err := s.readLiveLocked()
	if err != nil {
		return nil, err
	}
	doc, dropped, err := decodeLive(prior)
	if err != nil {
		return nil, err
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		return doc, err
	}

	if withBackup {
		if _, err := s.backupLocked(prior); err != nil {
			return nil, err
		}
	}
	now := s.now().UTC()
	doc.LastSaved = &now
	doc.LastUpdated = &now
	doc.Version++
	if err := s.commitLocked(doc, dropped); err != nil {
		return nil, err
	}
	s.log.Info().Str("op", op).Int64("version", doc.Version).Msg("document updated")
	return doc, nil
}
