package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUser(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "alice", "alice"},
		{"trimmed", "  alice\n", "alice"},
		{"inner control characters", "b\x01o\tb", "bob"},
		{"empty", "", DefaultUser},
		{"only whitespace and controls", " \t\x01 ", DefaultUser},
		{"control between spaces", " \x01 alice", "alice"},
		{"unicode kept", "zoë", "zoë"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUser(tt.in))
		})
	}
}

func TestValidUser(t *testing.T) {
	assert.True(t, ValidUser(strings.Repeat("é", MaxUserLength)))
	assert.False(t, ValidUser(strings.Repeat("u", MaxUserLength+1)))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "general", CleanName(" gen\x00eral "))
}
