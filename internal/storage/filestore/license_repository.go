package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"go.uber.org/zap"
)

// licenseDocument is the persisted layout: the full license collection and
// the stats record live in one document so a status transition and its
// stats delta share a single atomic replace.
type licenseDocument struct {
	Licenses map[string]*license.License `json:"licenses"`
	Stats    license.Stats               `json:"stats"`
}

// LicenseRepository keeps the authoritative license state in memory and
// flushes the whole document on every mutation. One mutex guards the
// license collection and the stats record together; per-key locking would
// let concurrent transitions race on the shared counters.
type LicenseRepository struct {
	mu       sync.RWMutex
	path     string
	licenses map[string]*license.License
	stats    license.Stats
	logger   *zap.Logger
}

var _ license.Repository = (*LicenseRepository)(nil)

func NewLicenseRepository(path string, logger *zap.Logger) (*LicenseRepository, error) {
	r := &LicenseRepository{
		path:     path,
		licenses: make(map[string]*license.License),
		logger:   logger.Named("LicenseRepository"),
	}

	var doc licenseDocument
	err := ReadJSON(path, &doc)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.logger.Info("No license state file found, starting with empty state", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to load license state: %w", err)
	default:
		if doc.Licenses != nil {
			r.licenses = doc.Licenses
		}
		r.stats = doc.Stats
		r.upgradeRecords()
		r.logger.Info("Loaded license state",
			zap.String("path", path),
			zap.Int("licenses", len(r.licenses)),
			zap.Int64("active", r.stats.ActiveCount),
		)
	}

	return r, nil
}

// upgradeRecords backfills fields older state files lack. Records written
// before product binding existed carry only a product name; the identifier
// is recomputed from it once here, never silently at write time.
func (r *LicenseRepository) upgradeRecords() {
	for key, lic := range r.licenses {
		if lic.Key == "" {
			lic.Key = key
		}
		if lic.ProductID == "" && lic.ProductName != "" {
			lic.ProductID = license.SlugifyProduct(lic.ProductName)
			r.logger.Debug("Backfilled product identifier from legacy record",
				zap.String("key", key),
				zap.String("product_id", lic.ProductID),
			)
		}
		if lic.Status == "" {
			lic.Status = license.StatusActive
		}
	}
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lic, ok := r.licenses[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	return lic.Clone(), nil
}

func (r *LicenseRepository) FindByPaymentRef(ctx context.Context, ref string) (*license.License, error) {
	if ref == "" {
		return nil, license.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lic := range r.licenses {
		if lic.PaymentRef == ref {
			return lic.Clone(), nil
		}
	}
	return nil, license.ErrNotFound
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	licenses := make([]*license.License, 0, len(r.licenses))
	for _, lic := range r.licenses {
		licenses = append(licenses, lic.Clone())
	}

	sort.Slice(licenses, func(i, j int) bool {
		if licenses[i].IssuedAt.Equal(licenses[j].IssuedAt) {
			return licenses[i].Key < licenses[j].Key
		}
		return licenses[i].IssuedAt.After(licenses[j].IssuedAt)
	})

	return licenses, nil
}

func (r *LicenseRepository) Stats(ctx context.Context) (license.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats, nil
}

// Mutate runs fn against a scratch copy of the full state, flushes the
// result to disk, and only then swaps the copy in as the live state. An
// error from fn or from the flush leaves both memory and disk exactly as
// they were, so callers never see a stats delta without its record change.
func (r *LicenseRepository) Mutate(ctx context.Context, fn func(*license.State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scratch := &license.State{
		Licenses: make(map[string]*license.License, len(r.licenses)),
		Stats:    &license.Stats{},
	}
	for key, lic := range r.licenses {
		scratch.Licenses[key] = lic.Clone()
	}
	*scratch.Stats = r.stats

	if err := fn(scratch); err != nil {
		return err
	}

	doc := licenseDocument{
		Licenses: scratch.Licenses,
		Stats:    *scratch.Stats,
	}
	if err := WriteJSON(r.path, &doc); err != nil {
		r.logger.Error("Failed to flush license state, mutation discarded", zap.Error(err))
		return fmt.Errorf("%w: %v", ierr.ErrStorage, err)
	}

	r.licenses = scratch.Licenses
	r.stats = *scratch.Stats
	return nil
}
