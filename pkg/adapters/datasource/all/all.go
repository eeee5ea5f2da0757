// Package all links every connector adapter into the binary. Import it for
// side effects.
package all

import (
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/bigquery"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/databricks"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/duckdb"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/snowflake"
	_ "github.com/ekaya-inc/ekaya-query-engine/pkg/adapters/datasource/sqlserver"
)
