package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

// KeyPrefix starts every result key. Store bookkeeping keys never use it.
const KeyPrefix = "query"

// GenerateKey fingerprints a query for one tenant and data source.
//
// The key has the form query:<tenant>:<dataSource>:<hash>. Tenant and data
// source are query-escaped, so neither segment contains ':' or a glob
// metacharacter and pattern invalidation cannot cross tenants. The hash
// covers the normalized SQL and the parameters serialized with sorted keys.
func GenerateKey(tenantID, dataSourceID, sqlQuery string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(NormalizeSQL(sqlQuery)))
	h.Write([]byte{0})
	h.Write(encodeParams(params))
	return KeyPrefix + ":" + escape(tenantID) + ":" + escape(dataSourceID) + ":" + hex.EncodeToString(h.Sum(nil))
}

// NormalizeSQL collapses whitespace, trims and lower-cases sqlQuery.
func NormalizeSQL(sqlQuery string) string {
	return strings.ToLower(strings.Join(strings.Fields(sqlQuery), " "))
}

// encodeParams serializes params as JSON. Map keys are emitted in sorted
// order, so equal maps always produce equal bytes. Nil and empty maps are
// equivalent.
func encodeParams(params map[string]any) []byte {
	if len(params) == 0 {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		// Values that cannot be encoded still fingerprint deterministically
		// through their printed form.
		b, _ = json.Marshal(stringify(params))
	}
	return b
}

func stringify(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = fmtValue(v)
	}
	return out
}

func escape(segment string) string {
	return url.QueryEscape(segment)
}

// TenantPattern matches every key of one tenant.
func TenantPattern(tenantID string) string {
	return KeyPrefix + ":" + escape(tenantID) + ":*"
}

// DataSourcePattern matches every key of one tenant's data source.
func DataSourcePattern(tenantID, dataSourceID string) string {
	return KeyPrefix + ":" + escape(tenantID) + ":" + escape(dataSourceID) + ":*"
}

// AnyTenantDataSourcePattern matches keys of a data source id under any tenant.
func AnyTenantDataSourcePattern(dataSourceID string) string {
	return KeyPrefix + ":*:" + escape(dataSourceID) + ":*"
}
