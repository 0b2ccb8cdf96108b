// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package querykey defines the hierarchical keys that address cache entries.
//
// A key is an ordered tuple of atoms whose first atom is always a namespace:
//
//	("feed")                      the viewer's feed
//	("review", "42")              detail cache for review 42
//	("user-reviews", "9")         reviews written by user 9
//	("entity", "like", "42")      canonical like state of review 42
//
// Every key carries its namespace, and canonical keys carry an entity-type
// tag, so a raw numeric id shared by a review and a user can never address
// the same entry. Prefix matching gives bulk scans and invalidation over a
// whole family of entries.
package querykey

import (
	"strings"
)

// Namespace is the first atom of every key.
type Namespace string

// View namespaces. Each names a family of cached, denormalized views.
const (
	Feed          Namespace = "feed"
	Review        Namespace = "review"
	UserReviews   Namespace = "user-reviews"
	MyReviews     Namespace = "my-reviews"
	BookReviews   Namespace = "book-reviews"
	Comments      Namespace = "comments"
	UserProfile   Namespace = "user-profile"
	Followers     Namespace = "followers"
	Following     Namespace = "following"
	UserSearch    Namespace = "user-search"
	Blocks        Namespace = "blocks"
	Notifications Namespace = "notifications"
	UnreadCount   Namespace = "unread-count"
	ToRead        Namespace = "to-read"
	Book          Namespace = "book"
)

// EntityNamespace holds canonical entity state.
const EntityNamespace Namespace = "entity"

// EntityType tags canonical keys with the kind of fact they hold.
type EntityType string

const (
	LikeEntity         EntityType = "like"
	FollowEntity       EntityType = "follow"
	BlockEntity        EntityType = "block"
	NotificationEntity EntityType = "notification"
	ToReadEntity       EntityType = "to-read"
	ViewerEntity       EntityType = "viewer"
)

// separator cannot appear in an atom; see escape.
const separator = "\x1f"

// Key is an immutable ordered tuple of atoms. The zero Key is invalid.
type Key struct {
	atoms []string
	enc   string
}

// New builds a key from a namespace and qualifier atoms.
func New(ns Namespace, qualifiers ...string) Key {
	atoms := make([]string, 0, len(qualifiers)+1)
	atoms = append(atoms, string(ns))
	atoms = append(atoms, qualifiers...)
	return fromAtoms(atoms)
}

// Canonical returns the key of the canonical state for one entity id.
func Canonical(t EntityType, id string) Key {
	return New(EntityNamespace, string(t), id)
}

// CanonicalPrefix returns the prefix shared by every canonical key of t.
func CanonicalPrefix(t EntityType) Key {
	return New(EntityNamespace, string(t))
}

func fromAtoms(atoms []string) Key {
	escaped := make([]string, len(atoms))
	for i, a := range atoms {
		escaped[i] = escape(a)
	}
	return Key{atoms: atoms, enc: strings.Join(escaped, separator)}
}

// escape keeps the encoding injective when an atom contains the separator.
func escape(atom string) string {
	if !strings.ContainsAny(atom, separator+"\\") {
		return atom
	}
	atom = strings.ReplaceAll(atom, "\\", "\\\\")
	return strings.ReplaceAll(atom, separator, "\\u001f")
}

// Namespace returns the first atom.
func (k Key) Namespace() Namespace {
	if len(k.atoms) == 0 {
		return ""
	}
	return Namespace(k.atoms[0])
}

// Atoms returns a copy of the key's atoms.
func (k Key) Atoms() []string {
	out := make([]string, len(k.atoms))
	copy(out, k.atoms)
	return out
}

// Len returns the number of atoms.
func (k Key) Len() int {
	return len(k.atoms)
}

// At returns atom i, or "" when out of range.
func (k Key) At(i int) string {
	if i < 0 || i >= len(k.atoms) {
		return ""
	}
	return k.atoms[i]
}

// Last returns the final atom.
func (k Key) Last() string {
	return k.At(len(k.atoms) - 1)
}

// IsZero reports whether k has no atoms.
func (k Key) IsZero() bool {
	return len(k.atoms) == 0
}

// String returns the collision-free encoding used as a map key.
func (k Key) String() string {
	return k.enc
}

// Equal reports whether both keys hold the same atoms.
func (k Key) Equal(other Key) bool {
	return k.enc == other.enc
}

// Append returns a new key with extra atoms.
func (k Key) Append(atoms ...string) Key {
	all := make([]string, 0, len(k.atoms)+len(atoms))
	all = append(all, k.atoms...)
	all = append(all, atoms...)
	return fromAtoms(all)
}

// HasPrefix reports whether the first atoms of k equal all atoms of prefix.
//
// Matching is atom-wise: ("feed", "1") is not a prefix of ("feed", "10").
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix.atoms) > len(k.atoms) {
		return false
	}
	for i, a := range prefix.atoms {
		if k.atoms[i] != a {
			return false
		}
	}
	return true
}

// IsCanonical reports whether k addresses canonical entity state.
func (k Key) IsCanonical() bool {
	return k.Namespace() == EntityNamespace && len(k.atoms) == 3
}

// Decode parses a string produced by Key.String.
func Decode(enc string) Key {
	if enc == "" {
		return Key{}
	}
	parts := strings.Split(enc, separator)
	atoms := make([]string, len(parts))
	for i, p := range parts {
		atoms[i] = unescape(p)
	}
	return Key{atoms: atoms, enc: enc}
}

func unescape(atom string) string {
	if !strings.Contains(atom, "\\") {
		return atom
	}
	var b strings.Builder
	for i := 0; i < len(atom); i++ {
		if atom[i] == '\\' && i+1 < len(atom) {
			if atom[i+1] == '\\' {
				b.WriteByte('\\')
				i++
				continue
			}
			if strings.HasPrefix(atom[i+1:], "u001f") {
				b.WriteString(separator)
				i += 5
				continue
			}
		}
		b.WriteByte(atom[i])
	}
	return b.String()
}
