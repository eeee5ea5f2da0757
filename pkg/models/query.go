package models

import "time"

// QueryRequest is a unit of work submitted to the query engine.
type QueryRequest struct {
	TenantID     string         `json:"tenant_id,omitempty"`
	DataSourceID string         `json:"data_source_id"`
	SQL          string         `json:"sql"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	// UseCache defaults to true when nil.
	UseCache *bool `json:"use_cache,omitempty"`
	// CacheTTL in seconds; zero means the service default.
	CacheTTL int           `json:"cache_ttl,omitempty"`
	MaxRows  int           `json:"max_rows,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// CacheEnabled reports whether the request may be served from or written to the cache.
func (r *QueryRequest) CacheEnabled() bool {
	return r.UseCache == nil || *r.UseCache
}

// Column describes one result column.
type Column struct {
	Name     string     `json:"name"`
	Type     ColumnType `json:"type"`
	Nullable bool       `json:"nullable"`
}

// QueryMetadata carries execution statistics for a result.
type QueryMetadata struct {
	// ExecutionTime in milliseconds. For cache hits this is the cache round trip.
	ExecutionTime int64 `json:"executionTime"`
	RowCount      int   `json:"rowCount"`
	DataScanned   int64 `json:"dataScanned"`
	Cached        bool  `json:"cached"`
}

// QueryResult is the outcome of executing a QueryRequest.
type QueryResult struct {
	Columns  []Column         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	Metadata QueryMetadata    `json:"metadata"`
}

// Clone returns a copy that shares no slices or maps with r.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	out := &QueryResult{Metadata: r.Metadata}
	if r.Columns != nil {
		out.Columns = make([]Column, len(r.Columns))
		copy(out.Columns, r.Columns)
	}
	if r.Rows != nil {
		out.Rows = make([]map[string]any, len(r.Rows))
		for i, row := range r.Rows {
			out.Rows[i] = cloneMap(row)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		cp := make([]any, len(x))
		for i, e := range x {
			cp[i] = cloneValue(e)
		}
		return cp
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}

// ValidationResult reports whether a query is syntactically acceptable to a backend.
type ValidationResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}
