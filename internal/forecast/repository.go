package forecast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	forecastdb "github.com/volumeplan/volumeplan/internal/forecast/db"
	"github.com/volumeplan/volumeplan/internal/platform/db"
)

// Repository loads and stores raw forecast records.
type Repository interface {
	LoadRecords(ctx context.Context, scope Scope) ([]Record, error)
	ReplaceRecords(ctx context.Context, scope Scope, records []Record) error
	ActiveScopes(ctx context.Context) ([]Scope, error)
}

// PGRepository is the Postgres backed Repository.
type PGRepository struct {
	pool    *pgxpool.Pool
	queries *forecastdb.Queries
}

// NewPGRepository constructs a repository on the pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, queries: forecastdb.New(pool)}
}

// LoadRecords returns the stored records of the scope in insertion order.
func (r *PGRepository) LoadRecords(ctx context.Context, scope Scope) ([]Record, error) {
	scope = scope.Normalize()
	rows, err := r.queries.ListRecords(ctx, forecastdb.ListRecordsParams{
		PlanYear: int32(scope.Year),
		Markets:  scope.Markets,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: list records: %w", err)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal(row.Payload, &rec); err != nil {
			return nil, fmt.Errorf("forecast: decode record %d: %w", row.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ReplaceRecords swaps the scope's rows for records in one transaction.
func (r *PGRepository) ReplaceRecords(ctx context.Context, scope Scope, records []Record) error {
	scope = scope.Normalize()
	params := make([]forecastdb.InsertRecordParams, 0, len(records))
	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("forecast: encode record %d: %w", i, err)
		}
		params = append(params, forecastdb.InsertRecordParams{
			PlanYear: int32(scope.Year),
			Market:   rec.String(FieldMarket),
			Payload:  payload,
		})
	}

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		q := r.queries.WithTx(tx)
		if _, err := q.DeleteScope(ctx, forecastdb.DeleteScopeParams{
			PlanYear: int32(scope.Year),
			Markets:  scope.Markets,
		}); err != nil {
			return fmt.Errorf("forecast: delete scope: %w", forecastdb.MapError(err))
		}
		if len(params) == 0 {
			return nil
		}
		if _, err := q.CopyRecords(ctx, params); err != nil {
			return fmt.Errorf("forecast: copy records: %w", forecastdb.MapError(err))
		}
		return nil
	})
}

// ActiveScopes lists each stored plan year with its markets.
func (r *PGRepository) ActiveScopes(ctx context.Context) ([]Scope, error) {
	rows, err := r.queries.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("forecast: list scopes: %w", err)
	}
	scopes := make([]Scope, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, Scope{Year: int(row.PlanYear), Markets: row.Markets}.Normalize())
	}
	return scopes, nil
}
