// internal/stats/aggregator.go

// Package stats maintains the dashboard counters. The aggregate is a cache of
// a pure function over the application set, never a source of truth; Rebuild
// recomputes it from a full scan.
package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/models"
	"eservices-portal/internal/store"

	"github.com/redis/go-redis/v9"
)

const aggregateKey = "portal:stats"

const (
	fieldTotal         = "total"
	fieldServicePrefix = "service:"
	fieldStatusPrefix  = "status:"
)

// Snapshot is the materialized aggregate served to dashboards.
type Snapshot struct {
	TotalApplications int64            `json:"totalApplications"`
	ByService         map[string]int64 `json:"byService"`
	ByStatus          map[string]int64 `json:"byStatus"`
}

type Aggregator struct {
	rdb    *redis.Client
	store  store.Store
	logger logger.Logger
}

func NewAggregator(rdb *redis.Client, st store.Store, log logger.Logger) *Aggregator {
	return &Aggregator{
		rdb:    rdb,
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "stats"}),
	}
}

// Increment adjusts the counters for one status change. fromStatus is empty
// for a newly created application, which also bumps the per-service and global
// totals. Each HIncrBy is independently atomic; no cross-field transaction is
// needed since every counter is independently monotonic per event.
func (a *Aggregator) Increment(ctx context.Context, serviceType, fromStatus, toStatus string) error {
	pipe := a.rdb.Pipeline()

	if fromStatus == "" {
		pipe.HIncrBy(ctx, aggregateKey, fieldTotal, 1)
		pipe.HIncrBy(ctx, aggregateKey, fieldServicePrefix+serviceType, 1)
	} else {
		pipe.HIncrBy(ctx, aggregateKey, fieldStatusPrefix+fromStatus, -1)
	}
	pipe.HIncrBy(ctx, aggregateKey, fieldStatusPrefix+toStatus, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats increment: %w", err)
	}
	return nil
}

// Snapshot reads the aggregate hash.
func (a *Aggregator) Snapshot(ctx context.Context) (*Snapshot, error) {
	fields, err := a.rdb.HGetAll(ctx, aggregateKey).Result()
	if err != nil {
		return nil, fmt.Errorf("stats read: %w", err)
	}

	snap := &Snapshot{
		ByService: make(map[string]int64),
		ByStatus:  make(map[string]int64),
	}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == fieldTotal:
			snap.TotalApplications = n
		case strings.HasPrefix(field, fieldServicePrefix):
			snap.ByService[strings.TrimPrefix(field, fieldServicePrefix)] = n
		case strings.HasPrefix(field, fieldStatusPrefix):
			snap.ByStatus[strings.TrimPrefix(field, fieldStatusPrefix)] = n
		}
	}
	return snap, nil
}

// Rebuild recomputes the aggregate from a full application scan and replaces
// the hash. Used when the aggregate is missing or suspected stale.
func (a *Aggregator) Rebuild(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		ByService: make(map[string]int64),
		ByStatus:  make(map[string]int64),
	}

	cursor := ""
	for {
		q := store.Query{Cursor: cursor, Limit: 200}
		q.Normalize()

		var apps []models.Application
		if err := a.store.Find(ctx, store.CollectionApplications, q, &apps); err != nil {
			return nil, fmt.Errorf("stats rebuild scan: %w", err)
		}

		more := int64(len(apps)) > q.Limit
		if more {
			apps = apps[:q.Limit]
		}
		for _, app := range apps {
			snap.TotalApplications++
			snap.ByService[app.ServiceType]++
			snap.ByStatus[app.Status]++
		}
		if !more {
			break
		}
		last := apps[len(apps)-1]
		cursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}

	fields := map[string]interface{}{fieldTotal: snap.TotalApplications}
	for svc, n := range snap.ByService {
		fields[fieldServicePrefix+svc] = n
	}
	for status, n := range snap.ByStatus {
		fields[fieldStatusPrefix+status] = n
	}

	pipe := a.rdb.TxPipeline()
	pipe.Del(ctx, aggregateKey)
	pipe.HSet(ctx, aggregateKey, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("stats rebuild write: %w", err)
	}

	a.logger.Info("statistics aggregate rebuilt", map[string]interface{}{
		"totalApplications": snap.TotalApplications,
	})
	return snap, nil
}
