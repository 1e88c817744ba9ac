package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skillboard-api/internal/config"
	"github.com/skillboard-api/internal/postgres"
	"github.com/skillboard-api/internal/redis"
)

// SyncWorker periodically flushes live state from Redis into the PostgreSQL
// archive, and restores it in the other direction on startup when Redis is
// empty.
type SyncWorker struct {
	store   *redis.Store
	archive *postgres.Repository
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	store *redis.Store,
	archive *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		store:   store,
		archive: archive,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

// syncAll flushes leaderboard scores, skills and users to the archive
func (w *SyncWorker) syncAll(ctx context.Context) {
	w.logger.Info("starting archive cycle")
	startTime := time.Now()

	errorCount := 0

	if err := w.SyncScores(ctx); err != nil {
		w.logger.Error("failed to archive leaderboard scores", "error", err)
		errorCount++
	}

	skills, err := w.store.ListSkills(ctx)
	if err != nil {
		w.logger.Error("failed to list skills for archive", "error", err)
		errorCount++
	} else {
		for _, skill := range skills {
			if err := w.archive.UpsertSkill(ctx, skill); err != nil {
				w.logger.Error("failed to archive skill", "skill_id", skill.ID, "error", err)
				errorCount++
			}
		}
	}

	users, err := w.store.ListUsers(ctx)
	if err != nil {
		w.logger.Error("failed to list users for archive", "error", err)
		errorCount++
	} else {
		for _, user := range users {
			if err := w.archive.UpsertUser(ctx, user); err != nil {
				w.logger.Error("failed to archive user", "address", user.Address, "error", err)
				errorCount++
			}
		}
	}

	w.logger.Info("archive cycle completed",
		"duration", time.Since(startTime),
		"errors", errorCount,
	)
}

// SyncScores writes the live leaderboard to the archive in batches
func (w *SyncWorker) SyncScores(ctx context.Context) error {
	scores, err := w.store.AllLeaderboardScores(ctx)
	if err != nil {
		return err
	}

	if len(scores) == 0 {
		w.logger.Debug("no leaderboard scores to archive")
		return nil
	}

	batchSize := w.config.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	for skillID, score := range scores {
		batch[skillID] = score

		if len(batch) >= batchSize {
			if err := w.archive.BatchUpsertScores(ctx, batch); err != nil {
				return err
			}
			batch = make(map[string]int64, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := w.archive.BatchUpsertScores(ctx, batch); err != nil {
			return err
		}
	}

	w.logger.Debug("archived leaderboard scores", "count", len(scores))
	return nil
}

// RecoverFromArchive rebuilds the Redis catalog and leaderboard from the
// archive. Only runs when the live leaderboard is empty, so a restart never
// clobbers newer live state.
func (w *SyncWorker) RecoverFromArchive(ctx context.Context) error {
	size, err := w.store.LeaderboardSize(ctx)
	if err != nil {
		return err
	}
	if size > 0 {
		w.logger.Debug("live leaderboard present, skipping recovery", "size", size)
		return nil
	}

	skills, err := w.archive.ListSkills(ctx)
	if err != nil {
		return err
	}
	for _, skill := range skills {
		if err := w.store.PutSkill(ctx, skill); err != nil {
			return err
		}
	}

	scores, err := w.archive.AllScores(ctx)
	if err != nil {
		return err
	}
	if len(scores) > 0 {
		if err := w.store.BatchSetLeaderboard(ctx, scores); err != nil {
			return err
		}
	}

	w.logger.Info("recovered catalog and leaderboard from archive",
		"skills", len(skills),
		"scores", len(scores),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single archive cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.syncAll(ctx)
}
