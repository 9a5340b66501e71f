package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		expected bool
	}{
		{"meets every rule", "Passw0rd!", true},
		{"too short", "Pw0rd!", false},
		{"no uppercase", "passw0rd!", false},
		{"no lowercase", "PASSW0RD!", false},
		{"no digit", "Password!", false},
		{"no special character", "Passw0rdd", false},
		{"empty", "", false},
		{"exactly eight characters", "Passw0r!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidPassword(tt.password))
		})
	}
}

func TestHashTokenDeterministic(t *testing.T) {
	s := &AuthService{}
	first := s.hashToken("some-refresh-token")
	second := s.hashToken("some-refresh-token")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, s.hashToken("other-token"))
	assert.Len(t, first, 64)
}
