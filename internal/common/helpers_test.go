package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralizeStars(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "звёзд"},
		{1, "звезда"},
		{2, "звезды"},
		{4, "звезды"},
		{5, "звёзд"},
		{11, "звёзд"},
		{12, "звёзд"},
		{14, "звёзд"},
		{21, "звезда"},
		{22, "звезды"},
		{100, "звёзд"},
		{101, "звезда"},
		{111, "звёзд"},
		{-3, "звезды"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PluralizeStars(tt.n), "n=%d", tt.n)
	}
}

func TestPluralizeRubles(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{1, "рубль"},
		{2, "рубля"},
		{5, "рублей"},
		{11, "рублей"},
		{21, "рубль"},
		{299, "рублей"},
		{1999, "рублей"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PluralizeRubles(tt.n), "n=%d", tt.n)
	}
}

func TestFormatStars(t *testing.T) {
	assert.Equal(t, "150 звёзд", FormatStars(150))
	assert.Equal(t, "1 звезда", FormatStars(1))
}

func TestFormatStarsAmount(t *testing.T) {
	assert.Equal(t, "+100 звёзд", FormatStarsAmount(100))
	assert.Equal(t, "+1 звезда", FormatStarsAmount(1))
	assert.Equal(t, "-50 звёзд", FormatStarsAmount(-50))
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1 000"},
		{2350, "2 350"},
		{1234567, "1 234 567"},
		{-2350, "-2 350"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.n), "n=%d", tt.n)
	}
}
