package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// UpsertResult is the outcome of one Engine.Upsert call. When Estimated is
// true the insert/update split was not measured and was derived by halving
// the staged row count.
type UpsertResult struct {
	Success   bool   `json:"success"`
	Inserted  int    `json:"inserted"`
	Updated   int    `json:"updated"`
	Estimated bool   `json:"estimated"`
	FellBack  bool   `json:"fell_back"`
	Staging   string `json:"staging,omitempty"`
}

// Engine runs the stage, reconcile and cleanup cycle on a Warehouse.
type Engine struct {
	wh          Warehouse
	now         func() time.Time
	stagingName func(target string, at time.Time) string
	log         *zap.Logger
}

// NewEngine creates an Engine over wh.
func NewEngine(wh Warehouse) *Engine {
	return &Engine{
		wh:          wh,
		now:         time.Now,
		stagingName: StagingName,
		log:         zap.L().With(zap.String("component", "warehouse"), zap.String("dialect", wh.Dialect())),
	}
}

// Warehouse returns the underlying dialect.
func (e *Engine) Warehouse() Warehouse { return e.wh }

// Upsert writes rows into spec's table keyed by its natural key: matched
// rows are replaced, new rows inserted. Rows sharing a key within the batch
// collapse to the last one. If staging or reconcile fails, the batch is
// appended directly to the target and FellBack is set; only a failed
// fallback returns an error.
func (e *Engine) Upsert(ctx context.Context, spec TableSpec, rows [][]any) (UpsertResult, error) {
	return e.upsert(ctx, spec, rows, false)
}

// InsertMissing adds rows whose key is absent from the target and leaves
// existing rows untouched.
func (e *Engine) InsertMissing(ctx context.Context, spec TableSpec, rows [][]any) (UpsertResult, error) {
	return e.upsert(ctx, spec, rows, true)
}

func (e *Engine) upsert(ctx context.Context, spec TableSpec, rows [][]any, insertOnly bool) (UpsertResult, error) {
	if len(rows) == 0 {
		return UpsertResult{Success: true}, nil
	}

	batch, err := dedupeBatch(spec, rows)
	if err != nil {
		return UpsertResult{}, err
	}

	staging := e.stagingName(spec.Name, e.now())
	log := e.log.With(zap.String("table", spec.Name), zap.String("staging", staging), zap.Int("rows", len(batch)))

	stats, stageErr := e.stageAndMerge(ctx, spec, staging, batch, insertOnly)

	// Cleanup runs even when the caller's context is already done.
	if err := e.wh.DropTable(context.WithoutCancel(ctx), staging); err != nil {
		log.Warn("warehouse: drop staging table failed", zap.Error(err))
	}

	if stageErr == nil {
		res := UpsertResult{Success: true, Staging: staging}
		if stats.Known {
			res.Inserted, res.Updated = int(stats.Inserted), int(stats.Updated)
		} else {
			res.Updated = len(batch) / 2
			res.Inserted = len(batch) - res.Updated
			res.Estimated = true
		}
		log.Info("warehouse: upsert complete",
			zap.Int("inserted", res.Inserted), zap.Int("updated", res.Updated), zap.Bool("estimated", res.Estimated))
		return res, nil
	}

	log.Warn("warehouse: staged merge failed, falling back to append", zap.Error(stageErr))
	n, err := e.wh.Append(ctx, spec.Name, spec.ColumnNames(), batch)
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "warehouse: fallback append to %s (merge error: %v)", spec.Name, stageErr)
	}
	return UpsertResult{Success: true, Inserted: int(n), FellBack: true, Staging: staging}, nil
}

func (e *Engine) stageAndMerge(ctx context.Context, spec TableSpec, staging string, rows [][]any, insertOnly bool) (MergeStats, error) {
	if err := e.wh.CreateStaging(ctx, staging, spec); err != nil {
		return MergeStats{}, eris.Wrap(err, "warehouse: stage")
	}
	if _, err := e.wh.Append(ctx, staging, spec.ColumnNames(), rows); err != nil {
		return MergeStats{}, eris.Wrap(err, "warehouse: stage rows")
	}
	stats, err := e.wh.Merge(ctx, MergeSpec{
		Target:     spec.Name,
		Staging:    staging,
		Columns:    spec.ColumnNames(),
		Keys:       spec.Keys,
		InsertOnly: insertOnly,
	})
	if err != nil {
		return MergeStats{}, eris.Wrap(err, "warehouse: reconcile")
	}
	return stats, nil
}

// Deduplicate keeps the newest row per natural key in spec's table and
// returns how many rows were removed. Running it twice removes nothing the
// second time.
func (e *Engine) Deduplicate(ctx context.Context, spec TableSpec) (int64, error) {
	n, err := e.wh.Deduplicate(ctx, spec.Dedup())
	if err != nil {
		return 0, eris.Wrapf(err, "warehouse: deduplicate %s", spec.Name)
	}
	e.log.Info("warehouse: deduplicated", zap.String("table", spec.Name), zap.Int64("removed", n))
	return n, nil
}

// Migrate creates the given tables if missing.
func (e *Engine) Migrate(ctx context.Context, specs ...TableSpec) error {
	return e.wh.Migrate(ctx, specs...)
}

// StagingName builds a collision-resistant staging table name from the
// target's base name, a UTC timestamp and a random suffix.
func StagingName(target string, at time.Time) string {
	base := target
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[i+1:]
	}
	if len(base) > 32 {
		base = base[:32]
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("stg_%s_%s_%s", base, at.UTC().Format("20060102150405"), suffix)
}

// dedupeBatch collapses rows sharing a natural key, keeping the last value at
// the position of the first occurrence.
func dedupeBatch(spec TableSpec, rows [][]any) ([][]any, error) {
	idx, err := spec.keyIndexes()
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(spec.Columns) {
			return nil, eris.Errorf("warehouse: row has %d values, table %s has %d columns", len(row), spec.Name, len(spec.Columns))
		}
		parts := make([]string, len(idx))
		for i, p := range idx {
			parts[i] = fmt.Sprintf("%v", row[p])
		}
		key := strings.Join(parts, "\x1f")
		if at, ok := pos[key]; ok {
			out[at] = row
			continue
		}
		pos[key] = len(out)
		out = append(out, row)
	}
	return out, nil
}
