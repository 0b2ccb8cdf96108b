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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_HasPrefix(t *testing.T) {
	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{"namespace prefix", New(UserReviews, "9"), New(UserReviews), true},
		{"exact", New(Review, "42"), New(Review, "42"), true},
		{"atom-wise not string-wise", New(Feed, "10"), New(Feed, "1"), false},
		{"longer prefix", New(Feed), New(Feed, "1"), false},
		{"other namespace", New(Review, "42"), New(Feed), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.HasPrefix(tt.prefix))
		})
	}
}

func TestCanonical_NoCrossEntityCollision(t *testing.T) {
	like := Canonical(LikeEntity, "42")
	follow := Canonical(FollowEntity, "42")

	assert.NotEqual(t, like.String(), follow.String())
	assert.True(t, like.IsCanonical())
	assert.True(t, like.HasPrefix(CanonicalPrefix(LikeEntity)))
	assert.False(t, follow.HasPrefix(CanonicalPrefix(LikeEntity)))
	assert.Equal(t, EntityNamespace, like.Namespace())
	assert.Equal(t, "42", like.Last())
}

func TestKey_EncodingIsInjective(t *testing.T) {
	a := New(Feed, "a"+separator+"b")
	b := New(Feed, "a", "b")

	assert.NotEqual(t, a.String(), b.String())
	assert.Equal(t, a.Atoms(), Decode(a.String()).Atoms())
	assert.Equal(t, b.Atoms(), Decode(b.String()).Atoms())

	weird := New(Feed, `back\slash`, `\u001f`)
	assert.Equal(t, weird.Atoms(), Decode(weird.String()).Atoms())
}

func TestPredicates(t *testing.T) {
	feed := New(Feed)
	detail := New(Review, "1")
	canon := Canonical(LikeEntity, "1")

	assert.True(t, Exact(feed)(feed))
	assert.False(t, Exact(feed)(detail))
	assert.True(t, InNamespace(Feed, Review)(detail))
	assert.False(t, InNamespace(Feed, Review)(canon))
	assert.True(t, AnyPrefix(New(Blocks), CanonicalPrefix(LikeEntity))(canon))
	assert.False(t, AnyOf()(feed))
	assert.True(t, All()(canon))
}

func TestKey_Append(t *testing.T) {
	base := New(Followers)
	k := base.Append("7")

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, k.Len())
	assert.Equal(t, "7", k.At(1))
	assert.Equal(t, "", k.At(5))
	assert.True(t, Key{}.IsZero())
}
