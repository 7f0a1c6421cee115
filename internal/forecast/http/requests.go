package forecasthttp

import (
	"github.com/volumeplan/volumeplan/internal/forecast"
)

// PivotRequest is the body of the pivot endpoints.
type PivotRequest struct {
	Scope   forecast.Scope    `json:"scope"`
	Filters []forecast.Filter `json:"filters,omitempty" validate:"max=32"`
	Row     string            `json:"row,omitempty" validate:"max=64"`
	Column  string            `json:"column,omitempty" validate:"max=64"`
	Measure string            `json:"measure" validate:"required,max=64"`
	// Formatted applies locale number formatting to CSV exports.
	Formatted bool `json:"formatted,omitempty"`
}

func (p PivotRequest) query() forecast.PivotQuery {
	return forecast.PivotQuery{Filters: p.Filters, Row: p.Row, Column: p.Column, Measure: p.Measure}
}

// DashboardRequest is the body of the dashboard endpoint.
type DashboardRequest struct {
	Scope forecast.Scope           `json:"scope"`
	Tiles []forecast.DashboardTile `json:"tiles" validate:"required,min=1,max=12,dive"`
}

// RollupRequest is the body of the rollup endpoints.
type RollupRequest struct {
	Scope forecast.Scope `json:"scope"`
	forecast.RollupQuery
	Formatted bool `json:"formatted,omitempty"`
}

// EvaluateRequest is the body of the single-record guidance endpoint.
type EvaluateRequest struct {
	Record         forecast.Record `json:"record"`
	Guidance       string          `json:"guidance" validate:"required,max=64"`
	IncludeMonthly bool            `json:"includeMonthly,omitempty"`
}

// ReplaceRecordsRequest is the body of the record ingest endpoint.
type ReplaceRecordsRequest struct {
	Scope   forecast.Scope    `json:"scope"`
	Records []forecast.Record `json:"records" validate:"max=200000"`
}
