package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/dbquery"
	forecastdomain "harborgrid-cloud/internal/forecast/domain"
)

// Tool is one capability the advisor agent can invoke. Calls carry
// the requesting user's tenant and role so data access stays inside
// their permissions.
type Tool interface {
	Name() string
	Definition() anthropic.ToolUnionParam
	Run(ctx context.Context, tenantID string, role auth.Role, input json.RawMessage) (string, error)
}

// QueryRunner is the read-only slice of the dynamic query executor
// the agent is allowed to reach.
type QueryRunner interface {
	Select(ctx context.Context, role auth.Role, q dbquery.Query) ([]map[string]any, error)
	SelectAggregate(ctx context.Context, role auth.Role, agg dbquery.Aggregate) ([]map[string]any, error)
}

const queryToolMaxRows = 200

type queryDataTool struct {
	runner QueryRunner
}

// NewQueryDataTool exposes telemetry tables to the agent through the
// role-checked query builder. Writes are not reachable from here.
func NewQueryDataTool(runner QueryRunner) (Tool, error) {
	if runner == nil {
		return nil, errors.New("query tool: nil runner")
	}
	return &queryDataTool{runner: runner}, nil
}

func (t *queryDataTool) Name() string { return "query_data" }

func (t *queryDataTool) Definition() anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name: t.Name(),
		Description: anthropic.String("Run a read-only query against facility tables " +
			"(readings, forecast_pv, notifications, tasks, zones). Either select rows " +
			"or compute a single aggregate."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]any{
				"table": map[string]any{
					"type":        "string",
					"description": "Table to query, e.g. readings",
				},
				"columns": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Columns to return; omit for all",
				},
				"filters": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"column": map[string]any{"type": "string"},
							"op": map[string]any{
								"type": "string",
								"enum": []string{"eq", "neq", "gt", "gte", "lt", "lte", "like", "ilike", "in", "notin"},
							},
							"value": map[string]any{},
						},
						"required": []string{"column", "op"},
					},
				},
				"aggregate": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"func": map[string]any{
							"type": "string",
							"enum": []string{"count", "sum", "avg", "min", "max"},
						},
						"column":  map[string]any{"type": "string"},
						"groupBy": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"func"},
				},
				"orderBy": map[string]any{"type": "string"},
				"desc":    map[string]any{"type": "boolean"},
				"limit":   map[string]any{"type": "integer"},
			},
			Required: []string{"table"},
		},
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

type queryToolInput struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Filters []struct {
		Column string `json:"column"`
		Op     string `json:"op"`
		Value  any    `json:"value"`
	} `json:"filters"`
	Aggregate *struct {
		Func    string   `json:"func"`
		Column  string   `json:"column"`
		GroupBy []string `json:"groupBy"`
	} `json:"aggregate"`
	OrderBy string `json:"orderBy"`
	Desc    bool   `json:"desc"`
	Limit   uint64 `json:"limit"`
}

func (t *queryDataTool) Run(ctx context.Context, tenantID string, role auth.Role, input json.RawMessage) (string, error) {
	var req queryToolInput
	if err := json.Unmarshal(input, &req); err != nil {
		return "", fmt.Errorf("query tool: bad input: %w", err)
	}
	if req.Table == "" {
		return "", errors.New("query tool: missing table")
	}

	filters := make([]dbquery.Filter, 0, len(req.Filters)+1)
	// Tenant scoping is not negotiable, whatever the model asks for.
	filters = append(filters, dbquery.Filter{Column: "tenant_id", Op: dbquery.OpEq, Value: tenantID})
	for _, f := range req.Filters {
		filters = append(filters, dbquery.Filter{Column: f.Column, Op: dbquery.Op(f.Op), Value: f.Value})
	}

	var (
		rows []map[string]any
		err  error
	)
	if req.Aggregate != nil {
		rows, err = t.runner.SelectAggregate(ctx, role, dbquery.Aggregate{
			Table:   req.Table,
			Func:    dbquery.AggFunc(req.Aggregate.Func),
			Column:  req.Aggregate.Column,
			GroupBy: req.Aggregate.GroupBy,
			Filters: filters,
		})
	} else {
		limit := req.Limit
		if limit == 0 || limit > queryToolMaxRows {
			limit = queryToolMaxRows
		}
		rows, err = t.runner.Select(ctx, role, dbquery.Query{
			Table:   req.Table,
			Columns: req.Columns,
			Filters: filters,
			OrderBy: req.OrderBy,
			Desc:    req.Desc,
			Limit:   limit,
		})
	}
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{"rows": rows, "count": len(rows)})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

type pvForecastTool struct {
	repo forecastdomain.Repository
}

// NewPVForecastTool exposes the stored PV forecast bands to the agent.
func NewPVForecastTool(repo forecastdomain.Repository) (Tool, error) {
	if repo == nil {
		return nil, errors.New("forecast tool: nil repository")
	}
	return &pvForecastTool{repo: repo}, nil
}

func (t *pvForecastTool) Name() string { return "pv_forecast" }

func (t *pvForecastTool) Definition() anthropic.ToolUnionParam {
	toolParam := anthropic.ToolParam{
		Name: t.Name(),
		Description: anthropic.String("Fetch the stored rooftop PV forecast (P10/P50/P90 kW " +
			"per half-hour period) for the next N hours."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]any{
				"hours": map[string]any{
					"type":        "integer",
					"description": "Forecast horizon in hours, 1-168. Default 24.",
				},
			},
		},
	}
	return anthropic.ToolUnionParam{OfTool: &toolParam}
}

func (t *pvForecastTool) Run(ctx context.Context, tenantID string, role auth.Role, input json.RawMessage) (string, error) {
	var req struct {
		Hours int `json:"hours"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			return "", fmt.Errorf("forecast tool: bad input: %w", err)
		}
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}
	if req.Hours > 168 {
		req.Hours = 168
	}

	now := time.Now().UTC()
	estimates, err := t.repo.Range(ctx, tenantID, now, now.Add(time.Duration(req.Hours)*time.Hour))
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]any{"forecasts": estimates, "count": len(estimates)})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
