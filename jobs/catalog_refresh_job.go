package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/sirupsen/logrus"
)

// CatalogRefresher is satisfied by services.CatalogCache
type CatalogRefresher interface {
	Get(ctx context.Context, forceRefresh bool) (models.CatalogSnapshot, error)
}

// CatalogRefreshJob forces a full scrape so the first apply run of the day
// reads a fresh catalog
type CatalogRefreshJob struct {
	Catalog CatalogRefresher
	Timeout time.Duration
}

func NewCatalogRefreshJob(catalog CatalogRefresher) *CatalogRefreshJob {
	return &CatalogRefreshJob{
		Catalog: catalog,
		Timeout: 20 * time.Minute,
	}
}

func (j *CatalogRefreshJob) Run() {
	startTime := time.Now()
	logrus.Info("Running Catalog Refresh Job...")

	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	snapshot, err := j.Catalog.Get(ctx, true)
	if err != nil {
		logrus.Errorf("Catalog Refresh Job failed: %v", err)
		return
	}

	fields := logrus.Fields{
		"shows":    len(snapshot.Shows),
		"stale":    snapshot.Stale,
		"degraded": snapshot.Degraded,
		"duration": time.Since(startTime),
	}
	if snapshot.Stale {
		logrus.WithFields(fields).Warn("Catalog Refresh Job: scrape failed, previous catalog kept")
		return
	}
	logrus.WithFields(fields).Info("Catalog Refresh Job completed")
}
