package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	errors "github.com/gardenfresh/order-payments/internal"
)

// Canonicalize renders a payload as a deterministic query string: keys
// sorted lexicographically, nil values normalized to empty strings, nested
// objects and arrays serialized as compact JSON (whose own keys encoding/json
// already emits sorted). The gateway signs this exact form on its side.
func Canonicalize(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+canonicalValue(data[k]))
	}
	return strings.Join(parts, "&")
}

func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers decode as float64; emit without a spurious exponent
		// or trailing zeros so 250000 signs as "250000".
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Sign computes the hex HMAC-SHA256 of the canonical payload form.
func Sign(data map[string]interface{}, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Canonicalize(data)))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignCanonical signs an already-canonicalized string. Used for outbound
// requests where the gateway dictates a fixed field order.
func SignCanonical(canonical, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook payload against its claimed
// signature. A missing signature or missing payload is a structural error,
// not a verification failure, and is rejected before canonicalization.
// Comparison is constant-time.
func VerifySignature(data map[string]interface{}, signature, secret string) (bool, error) {
	if secret == "" {
		return false, errors.ErrMissingSecret
	}
	if signature == "" || data == nil {
		return false, errors.ErrMissingSignature
	}

	expected := Sign(data, secret)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
