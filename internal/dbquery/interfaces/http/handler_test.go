package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"harborgrid-cloud/internal/auth"
	"harborgrid-cloud/internal/dbquery"
)

type fakeRunner struct {
	rows    []map[string]any
	err     error
	gotRole auth.Role
	gotQ    *dbquery.Query
	gotAgg  *dbquery.Aggregate
}

func (f *fakeRunner) Select(ctx context.Context, role auth.Role, q dbquery.Query) ([]map[string]any, error) {
	f.gotRole = role
	f.gotQ = &q
	return f.rows, f.err
}

func (f *fakeRunner) SelectAggregate(ctx context.Context, role auth.Role, agg dbquery.Aggregate) ([]map[string]any, error) {
	f.gotRole = role
	f.gotAgg = &agg
	return f.rows, f.err
}

func viewerCtx(ctx context.Context) context.Context {
	return auth.WithIdentity(ctx, "tenant-1", auth.RoleViewer, "v@plant")
}

func postQuery(t *testing.T, handler *QueryHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(body))
	req = req.WithContext(viewerCtx(req.Context()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQueryHandler_SelectScopesTenant(t *testing.T) {
	runner := &fakeRunner{rows: []map[string]any{{"zone_id": "zone-cold-1"}}}
	handler, err := NewQueryHandler(runner, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := postQuery(t, handler, `{
		"query": {
			"table": "readings",
			"columns": ["zone_id", "value_numeric"],
			"filters": [{"column": "point_key", "op": "eq", "value": "temp_c"}],
			"order_by": "ts",
			"desc": true
		}
	}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if runner.gotQ == nil {
		t.Fatal("select not called")
	}
	first := runner.gotQ.Filters[0]
	if first.Column != "tenant_id" || first.Op != dbquery.OpEq || first.Value != "tenant-1" {
		t.Fatalf("first filter = %+v", first)
	}
	if len(runner.gotQ.Filters) != 2 || runner.gotQ.Filters[1].Column != "point_key" {
		t.Fatalf("filters = %+v", runner.gotQ.Filters)
	}
	if runner.gotQ.Limit != maxQueryRows {
		t.Fatalf("limit = %d", runner.gotQ.Limit)
	}
	if runner.gotRole != auth.RoleViewer {
		t.Fatalf("role = %q", runner.gotRole)
	}

	var body struct {
		Rows  []map[string]any `json:"rows"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("count = %d", body.Count)
	}
}

func TestQueryHandler_AggregatePath(t *testing.T) {
	runner := &fakeRunner{rows: []map[string]any{{"zone_id": "zone-cold-1", "avg": -18.2}}}
	handler, _ := NewQueryHandler(runner, nil)

	rec := postQuery(t, handler, `{
		"aggregate": {
			"table": "readings",
			"func": "avg",
			"column": "value_numeric",
			"group_by": ["zone_id"]
		}
	}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.gotAgg == nil || runner.gotAgg.Filters[0].Column != "tenant_id" {
		t.Fatalf("aggregate = %+v", runner.gotAgg)
	}
}

func TestQueryHandler_CapsLimit(t *testing.T) {
	runner := &fakeRunner{}
	handler, _ := NewQueryHandler(runner, nil)
	rec := postQuery(t, handler, `{"query": {"table": "readings", "limit": 500000}}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.gotQ.Limit != maxQueryRows {
		t.Fatalf("limit = %d", runner.gotQ.Limit)
	}
}

func TestQueryHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{dbquery.ErrPermissionDenied, 403},
		{dbquery.ErrInvalidIdentifier, 400},
		{dbquery.ErrEmptyList, 400},
		{context.DeadlineExceeded, 500},
	}
	for _, tc := range cases {
		handler, _ := NewQueryHandler(&fakeRunner{err: tc.err}, nil)
		rec := postQuery(t, handler, `{"query": {"table": "readings"}}`)
		if rec.Code != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestQueryHandler_RejectsAmbiguousBody(t *testing.T) {
	handler, _ := NewQueryHandler(&fakeRunner{}, nil)
	for _, body := range []string{
		`{}`,
		`{"query": {"table": "readings"}, "aggregate": {"table": "readings", "func": "count"}}`,
		`not json`,
	} {
		rec := postQuery(t, handler, body)
		if rec.Code != 400 {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
}

func TestQueryHandler_RequiresTenant(t *testing.T) {
	handler, _ := NewQueryHandler(&fakeRunner{}, nil)
	req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{"query": {"table": "readings"}}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != 401 {
		t.Fatalf("status = %d", rec.Code)
	}
}
