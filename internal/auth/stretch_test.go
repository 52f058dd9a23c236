// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tollgate Contributors

package auth_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tollgate/tollgate/internal/auth"
)

var lowerHex128 = regexp.MustCompile(`^[0-9a-f]{128}$`)

func TestStretch_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  string
	}{
		{
			name:  "single round",
			count: 1,
			want:  "0cfb082341bf60b4c8724cdce461755496f5a6a902ebf61b3996e9a7fb272be9ee40b051172f8c45aa6d9b78f51bd81054a0a2994264a27137ad14898e91145f",
		},
		{
			name:  "three rounds",
			count: 3,
			want:  "3b29d930924f5f75ab50d0b32d54f9bb40a342cf76217cec960ef9421a0946e98a6efe6fbf5c551946dc289c41cc8fa2c4dc7808fdc41a5f78ae6335ddc48dbb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.Stretch("pw", "salt", "pepper", tt.count))
		})
	}
}

func TestStretch_Shape(t *testing.T) {
	inputs := []struct{ password, salt, pepper string }{
		{"", "", ""},
		{"pw", "salt", "pepper"},
		{"pässwörd", "ümlaut", "日本"},
		{"a:b", "c:d", "e:f"},
	}
	for _, in := range inputs {
		for _, count := range []int{1, 2, 10} {
			got := auth.Stretch(in.password, in.salt, in.pepper, count)
			assert.Len(t, got, auth.HashLen)
			assert.Regexp(t, lowerHex128, got)
		}
	}
}

func TestStretch_Deterministic(t *testing.T) {
	a := auth.Stretch("secret", "abc", "pep", 50)
	b := auth.Stretch("secret", "abc", "pep", 50)
	assert.Equal(t, a, b)
}

func TestStretch_CountBelowOneIsOne(t *testing.T) {
	one := auth.Stretch("pw", "salt", "pepper", 1)
	assert.Equal(t, one, auth.Stretch("pw", "salt", "pepper", 0))
	assert.Equal(t, one, auth.Stretch("pw", "salt", "pepper", -5))
}

func TestStretcher_Verify(t *testing.T) {
	s := auth.NewStretcher("pepper", 3)
	hash := s.Hash("pw", "salt")

	assert.True(t, s.Verify("pw", "salt", hash))
	assert.False(t, s.Verify("wrong", "salt", hash))
	assert.False(t, s.Verify("pw", "other", hash))
	assert.False(t, s.Verify("pw", "salt", hash[:64]))
	assert.False(t, auth.NewStretcher("other", 3).Verify("pw", "salt", hash))
}
