// Package chatops holds the mutation rules for set-valued chat and message
// fields. Every rule takes the full current value and returns the full new
// value; callers persist the result as a whole.
package chatops

// Contains reports whether uid is in set.
func Contains(set []string, uid string) bool {
	for _, v := range set {
		if v == uid {
			return true
		}
	}
	return false
}

// Add returns set with uid appended unless already present.
func Add(set []string, uid string) []string {
	if Contains(set, uid) {
		return clone(set)
	}
	return append(clone(set), uid)
}

// Remove returns set without any occurrence of uid. Removing an absent uid is a no-op.
func Remove(set []string, uid string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		if v != uid {
			out = append(out, v)
		}
	}
	return out
}

// Toggle removes uid if present, adds it otherwise. The second result is the new membership.
func Toggle(set []string, uid string) ([]string, bool) {
	if Contains(set, uid) {
		return Remove(set, uid), false
	}
	return Add(set, uid), true
}

// Union returns the distinct members of all sets in first-seen order.
func Union(sets ...[]string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, s := range sets {
		for _, v := range s {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func clone(set []string) []string {
	out := make([]string, len(set), len(set)+1)
	copy(out, set)
	return out
}
