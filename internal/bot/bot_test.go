package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandParser(t *testing.T) {
	p := NewCommandParser()

	tests := []struct {
		text      string
		wantCmd   string
		wantArgs  []string
		isCommand bool
	}{
		{"/баланс", "баланс", nil, true},
		{"/картинка кот в скафандре", "картинка", []string{"кот", "в", "скафандре"}, true},
		{"!озвучка привет", "озвучка", []string{"привет"}, true},
		{".видео", "видео", nil, true},
		{"/БАЛАНС", "баланс", nil, true},
		{"/баланс@stargen_bot", "баланс", nil, true},
		{"  /пополнить  ", "пополнить", nil, true},
		{"просто текст", "", nil, false},
		{"/", "", nil, false},
		{"", "", nil, false},
	}

	for _, tt := range tests {
		cmd, args, ok := p.ParseCommand(tt.text)
		assert.Equal(t, tt.isCommand, ok, tt.text)
		assert.Equal(t, tt.wantCmd, cmd, tt.text)
		assert.Equal(t, tt.wantArgs, args, tt.text)
	}
}
