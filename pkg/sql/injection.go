package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	Fingerprint string
}

func (r InjectionCheckResult) String() string {
	return fmt.Sprintf("%s (fingerprint %s)", r.ParamName, r.Fingerprint)
}

// CheckParameterForInjection runs libinjection over string values.
// Numbers, booleans and times cannot carry an injection and return nil.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	if isSQLi, fingerprint := libinjection.IsSQLi(strValue); isSQLi {
		return &InjectionCheckResult{
			ParamName:   paramName,
			Fingerprint: string(fingerprint),
		}
	}
	return nil
}

// CheckAllParameters returns every flagged parameter, ordered by name.
func CheckAllParameters(params map[string]any) []InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []InjectionCheckResult
	for _, name := range names {
		if r := CheckParameterForInjection(name, params[name]); r != nil {
			results = append(results, *r)
		}
	}
	return results
}
