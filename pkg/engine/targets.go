package engine

import (
	"regexp"
	"slices"
	"strings"
)

var exclusionGroup = regexp.MustCompile(`\[([^\]]+)\]`)

// ParseTargets resolves a destroy target pattern against the tracked
// logical ids.
//
// The pattern is a comma separated list of ids, or "*" for every tracked
// id. Bracketed groups such as "*[keep_a, keep_b]" name exclusions and may
// appear anywhere. Included ids that are not tracked are dropped. Both
// returned slices are sorted.
func ParseTargets(pattern string, tracked []string) (targets, excluded []string, err error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil, NewPermanentError("empty destroy target pattern", nil).WithCode(ErrCodeValidation)
	}

	skip := make(map[string]bool)
	for _, group := range exclusionGroup.FindAllStringSubmatch(pattern, -1) {
		for _, id := range strings.Split(group[1], ",") {
			if id = strings.TrimSpace(id); id != "" {
				skip[id] = true
			}
		}
	}

	includes := make(map[string]bool)
	wildcard := false
	for _, id := range strings.Split(exclusionGroup.ReplaceAllString(pattern, ""), ",") {
		switch id = strings.TrimSpace(id); id {
		case "":
		case "*":
			wildcard = true
		default:
			includes[id] = true
		}
	}

	targets = []string{}
	for _, id := range tracked {
		if skip[id] {
			continue
		}
		if wildcard || includes[id] {
			targets = append(targets, id)
		}
	}
	slices.Sort(targets)
	targets = slices.Compact(targets)

	excluded = make([]string, 0, len(skip))
	for id := range skip {
		excluded = append(excluded, id)
	}
	slices.Sort(excluded)

	return targets, excluded, nil
}
