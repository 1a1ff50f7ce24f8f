package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"github.com/felixgeelhaar/artifactrepo/internal/ports"
)

// Remove deletes a record and its directory. When no record has the exact
// identity, every record for the plugin, artifact and version is removed
// whatever its attributes.
func (r *Repository) Remove(ctx context.Context, pluginID, artifactID, version string, attrs artifact.Attributes) error {
	return r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}

		targets := r.matching(pluginID, artifactID, version)
		if rec := r.index[artifact.MakeKey(pluginID, artifactID, version, attrs)]; rec != nil {
			targets = []*artifact.Artifact{rec}
		} else {
			r.logger.Warn(ctx, "no artifact with these attributes, removing while ignoring attributes",
				ports.F("artifact", artifact.Describe(pluginID, artifactID, version, attrs)))
		}
		if len(targets) == 0 {
			r.logger.Warn(ctx, "no artifact matches, ignoring remove request",
				ports.F("artifact", artifact.Describe(pluginID, artifactID, version, nil)))
			return nil
		}

		for _, rec := range targets {
			r.removeRecord(ctx, rec)
			r.metrics.Removed(rec.PluginID)
		}
		return r.save(ctx)
	})
}

// removeRecord deletes the directory of rec and drops it from the index.
// The caller holds the lock and saves.
func (r *Repository) removeRecord(ctx context.Context, rec *artifact.Artifact) {
	dir := r.installDir(rec)
	if err := removeDir(dir); err != nil {
		r.logger.Warn(ctx, "failed to delete artifact directory", ports.F("dir", dir), ports.Err(err))
	}
	r.drop(rec.Key())
	r.logger.Info(ctx, "removed artifact", ports.F("artifact", rec.String()))
}

// Prune evicts the oldest REMOVE_OLDEST artifacts while the installed size
// exceeds the quota or the filesystem free space is under the threshold.
func (r *Repository) Prune(ctx context.Context) error {
	return r.lock.With(ctx, func() error {
		if err := r.refresh(ctx); err != nil {
			return err
		}

		for {
			used := r.usedBytes()
			free := 100.0
			if r.disk != nil {
				usage, err := r.disk.Usage(r.dir)
				if err != nil {
					return fmt.Errorf("failed to read free space: %w", err)
				}
				free = usage.FreePercent()
			}

			overQuota := r.quota > 0 && used > r.quota
			lowSpace := free < r.freeThreshold
			r.logger.Debug(ctx, "checked repository space",
				ports.F("used", used), ports.F("quota", r.quota), ports.F("free_percent", free))
			if !overQuota && !lowSpace {
				return nil
			}

			r.logger.Warn(ctx, "pruning must remove artifacts",
				ports.F("over_quota", overQuota), ports.F("low_space", lowSpace))
			victim := r.oldestEvictable()
			if victim == nil {
				r.logger.Error(ctx, "could not remove any artifact despite exceeded quota, aborting")
				return ErrNothingToPrune
			}

			r.removeRecord(ctx, victim)
			r.metrics.Evicted(victim.PluginID)
			r.steps.Step("Evicted " + victim.String())
			if err := r.save(ctx); err != nil {
				return err
			}
		}
	})
}

// oldestEvictable returns the earliest installed REMOVE_OLDEST record.
// Ties keep insertion order.
func (r *Repository) oldestEvictable() *artifact.Artifact {
	candidates := r.records()
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].InstallationTime.Before(candidates[j].InstallationTime)
	})
	for _, a := range candidates {
		if a.Retention == artifact.RemoveOldest {
			return a
		}
	}
	return nil
}
