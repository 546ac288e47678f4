package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// hashExcludedKeys are top-level keys that never participate in the hash.
var hashExcludedKeys = []string{"space_id"}

// ConfigHash returns the hex SHA-256 of the canonical JSON form of the
// space without its logical id. Null values, empty lists and empty maps are
// dropped and map keys are sorted, so a missing block and an explicitly
// empty one hash the same and key order in the source never matters.
func (c *SpaceConfig) ConfigHash() string {
	canonical, err := c.CanonicalJSON()
	if err != nil {
		// Every field of SpaceConfig is JSON encodable.
		panic(fmt.Sprintf("config: canonical encoding of %q failed: %v", c.LogicalID, err))
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON returns the normalized projection that ConfigHash digests.
func (c *SpaceConfig) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	for _, k := range hashExcludedKeys {
		delete(generic, k)
	}
	if v, ok := generic["version"].(float64); ok && v == 0 {
		generic["version"] = float64(DefaultSpaceVersion)
	}

	pruned, _ := prune(generic)
	if pruned == nil {
		pruned = map[string]interface{}{}
	}
	// encoding/json writes map keys in sorted order.
	return json.Marshal(pruned)
}

// prune drops nulls and empty containers. The second result reports
// whether the value should be kept.
func prune(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, child := range t {
			if pv, keep := prune(child); keep {
				out[k] = pv
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, child := range t {
			if pv, keep := prune(child); keep {
				out = append(out, pv)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return out, true
	default:
		return t, true
	}
}
