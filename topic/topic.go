// Package topic validates MQTT topic-name and topic-filter syntax.
//
// This is a client engine, not a broker: there is no subscription trie
// here, only the syntax rules a client-side validator needs before a
// SUBSCRIBE/UNSUBSCRIBE/PUBLISH is allowed onto the wire.
package topic

import (
	"fmt"
	"strings"
)

// ValidateName checks a PUBLISH topic name: non-empty, no wildcard
// characters, no embedded NUL.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("topic: name must not be empty")
	}
	for _, level := range strings.Split(name, "/") {
		if strings.ContainsAny(level, "+#") {
			return fmt.Errorf("topic: name %q must not contain wildcards", name)
		}
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("topic: name %q contains a NUL byte", name)
	}
	return nil
}

// SharedSubscription describes a parsed `$share/<group>/<filter>`
// subscription filter.
type SharedSubscription struct {
	Group  string
	Filter string
}

// ValidateFilter checks a SUBSCRIBE/UNSUBSCRIBE topic filter: wildcard
// placement (`+` occupies a whole level, `#` only as the last level)
// and, when present, `$share/<group>/<filter>` shape. It returns the
// parsed shared-subscription group/filter when the filter is shared.
func ValidateFilter(filter string) (shared *SharedSubscription, err error) {
	if filter == "" {
		return nil, fmt.Errorf("topic: filter must not be empty")
	}

	working := filter
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		group, inner, ok := strings.Cut(rest, "/")
		if !ok || group == "" || inner == "" {
			return nil, fmt.Errorf("topic: malformed shared filter %q", filter)
		}
		if strings.ContainsAny(group, "+#/") {
			return nil, fmt.Errorf("topic: shared-subscription group %q must not contain wildcards or '/'", group)
		}
		shared = &SharedSubscription{Group: group, Filter: inner}
		working = inner
	}

	levels := strings.Split(working, "/")
	for i, level := range levels {
		switch {
		case level == "+":
			// whole-level wildcard, always legal
		case level == "#":
			if i != len(levels)-1 {
				return nil, fmt.Errorf("topic: filter %q: '#' must be the last level", filter)
			}
		case strings.ContainsAny(level, "+#"):
			return nil, fmt.Errorf("topic: filter %q: '+'/'#' must occupy a whole level", filter)
		}
	}
	return shared, nil
}

// IsWildcard reports whether filter contains + or # anywhere, i.e.
// whether wildcardSubscriptionsAvailable gates it.
func IsWildcard(filter string) bool {
	return strings.ContainsAny(filter, "+#")
}
