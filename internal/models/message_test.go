package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationKeySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"u-9", "u-10"},
		{"same", "same"},
	}
	for _, pair := range pairs {
		forward := NewConversationKey(pair[0], pair[1])
		backward := NewConversationKey(pair[1], pair[0])
		assert.Equal(t, forward, backward)
		assert.Equal(t, forward.String(), backward.String())
	}
}

func TestConversationKeyOrdering(t *testing.T) {
	key := NewConversationKey("zoe", "adam")
	first, second := key.Participants()
	assert.Equal(t, "adam", first)
	assert.Equal(t, "zoe", second)
	assert.Equal(t, "adam:zoe", key.String())
}
