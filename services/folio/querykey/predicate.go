// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package querykey

// Predicate selects keys for scans, subscriptions and invalidation.
type Predicate func(Key) bool

// Exact matches only k.
func Exact(k Key) Predicate {
	return func(other Key) bool {
		return other.Equal(k)
	}
}

// Prefix matches k and every key below it.
func Prefix(k Key) Predicate {
	return func(other Key) bool {
		return other.HasPrefix(k)
	}
}

// InNamespace matches every key of the given namespaces.
func InNamespace(namespaces ...Namespace) Predicate {
	set := make(map[Namespace]struct{}, len(namespaces))
	for _, ns := range namespaces {
		set[ns] = struct{}{}
	}
	return func(k Key) bool {
		_, ok := set[k.Namespace()]
		return ok
	}
}

// AnyOf matches when any predicate matches. With no predicates it matches nothing.
func AnyOf(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, p := range preds {
			if p(k) {
				return true
			}
		}
		return false
	}
}

// AnyPrefix matches keys under any of the prefixes.
func AnyPrefix(prefixes ...Key) Predicate {
	preds := make([]Predicate, len(prefixes))
	for i, p := range prefixes {
		preds[i] = Prefix(p)
	}
	return AnyOf(preds...)
}

// All matches every key.
func All() Predicate {
	return func(Key) bool { return true }
}
