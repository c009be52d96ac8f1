package audit

import (
	"encoding/json"
	"strings"
)

// Redacted replaces every secret value in stored snapshots.
const Redacted = "[REDACTED]"

// secretKeys are compared after lowercasing and dropping '_' and '-', so
// refreshToken, refresh_token and RefreshToken all match.
var secretKeys = map[string]struct{}{
	"password":           {},
	"passwordhash":       {},
	"refreshtoken":       {},
	"passwordresettoken": {},
	"accesstoken":        {},
	"token":              {},
	"secret":             {},
}

func isSecretKey(k string) bool {
	n := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k))
	_, ok := secretKeys[n]
	return ok
}

// Redact returns a JSON-shaped copy of v with secret fields replaced by
// Redacted at any depth.  Structs are converted through encoding/json so
// their exported field names (or json tags) are what gets matched.  The
// input is never modified.
func Redact(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSecretKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	case string, bool, float64, json.Number:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Redacted
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return Redacted
	}
	switch generic.(type) {
	case map[string]any, []any:
		return Redact(generic)
	}
	return generic
}
