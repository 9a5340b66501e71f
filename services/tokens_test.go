package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"two words", "hello world", 2},
		{"punctuation counts alone", "hello, world!", 4},
		{"digits run as one token", "room 42", 2},
		{"mixed word and digit run", "user42", 1},
		{"punctuation splits runs", "who's there?", 5},
		{"only spaces", "   ", 0},
		{"symbols only", "?!", 2},
		{"newlines are spaces", "one\ntwo", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CountTokens(tt.text))
		})
	}
}
