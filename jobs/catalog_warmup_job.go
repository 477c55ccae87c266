package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// PersistedCatalog is satisfied by services.CatalogCache
type PersistedCatalog interface {
	CatalogRefresher
	LoadPersisted(ctx context.Context) (bool, error)
}

// CatalogWarmupJob fills the catalog slot at startup, preferring the
// persisted catalog over a fresh scrape
type CatalogWarmupJob struct {
	Catalog PersistedCatalog
	Timeout time.Duration
}

func NewCatalogWarmupJob(catalog PersistedCatalog) *CatalogWarmupJob {
	return &CatalogWarmupJob{Catalog: catalog, Timeout: 20 * time.Minute}
}

// Run returns true when the persisted catalog was loaded
func (j *CatalogWarmupJob) Run() bool {
	logrus.Info("Starting Catalog Warmup Job")
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	loaded, err := j.Catalog.LoadPersisted(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Persisted catalog unreadable, scraping instead")
	}
	if loaded {
		logrus.Info("Catalog Warmup Job completed from persisted catalog")
		return true
	}

	snapshot, err := j.Catalog.Get(ctx, false)
	if err != nil {
		logrus.Errorf("Catalog Warmup Job failed: %v", err)
		return false
	}
	logrus.WithField("shows", len(snapshot.Shows)).Info("Catalog Warmup Job completed from scrape")
	return false
}
