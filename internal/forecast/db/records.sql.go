package forecastdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

const listRecords = `
SELECT id, plan_year, market, payload, updated_at
FROM forecast_records
WHERE plan_year = $1
  AND (cardinality($2::text[]) = 0 OR market = ANY($2::text[]))
ORDER BY id
`

// ListRecordsParams selects one plan year, optionally narrowed to markets.
type ListRecordsParams struct {
	PlanYear int32
	Markets  []string
}

// RecordRow is a stored record.
type RecordRow struct {
	ID        int64
	PlanYear  int32
	Market    string
	Payload   []byte
	UpdatedAt time.Time
}

func (q *Queries) ListRecords(ctx context.Context, arg ListRecordsParams) ([]RecordRow, error) {
	rows, err := q.db.Query(ctx, listRecords, arg.PlanYear, marketsParam(arg.Markets))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecordRow
	for rows.Next() {
		var i RecordRow
		if err := rows.Scan(&i.ID, &i.PlanYear, &i.Market, &i.Payload, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteScope = `
DELETE FROM forecast_records
WHERE plan_year = $1
  AND (cardinality($2::text[]) = 0 OR market = ANY($2::text[]))
`

// DeleteScopeParams mirrors ListRecordsParams.
type DeleteScopeParams struct {
	PlanYear int32
	Markets  []string
}

func (q *Queries) DeleteScope(ctx context.Context, arg DeleteScopeParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteScope, arg.PlanYear, marketsParam(arg.Markets))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InsertRecordParams is one row for CopyRecords.
type InsertRecordParams struct {
	PlanYear int32
	Market   string
	Payload  []byte
}

// CopyRecords bulk inserts rows with COPY.
func (q *Queries) CopyRecords(ctx context.Context, arg []InsertRecordParams) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"forecast_records"},
		[]string{"plan_year", "market", "payload"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			return []any{arg[i].PlanYear, arg[i].Market, string(arg[i].Payload)}, nil
		}),
	)
}

const listScopes = `
SELECT plan_year, array_agg(DISTINCT market ORDER BY market)::text[] AS markets
FROM forecast_records
GROUP BY plan_year
ORDER BY plan_year
`

// ScopeRow lists the markets stored for a plan year.
type ScopeRow struct {
	PlanYear int32
	Markets  []string
}

func (q *Queries) ListScopes(ctx context.Context) ([]ScopeRow, error) {
	rows, err := q.db.Query(ctx, listScopes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ScopeRow
	for rows.Next() {
		var i ScopeRow
		if err := rows.Scan(&i.PlanYear, &i.Markets); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func marketsParam(markets []string) []string {
	if markets == nil {
		return []string{}
	}
	return markets
}
