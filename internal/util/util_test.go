package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", SanitizeInput("  <b>hi</b> "))
	assert.Equal(t, "a<br>b &amp; c", SanitizeMultiline("a\nb & c"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@b.com", NormalizeEmail("  A@B.com "))
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.com", true},
		{"first.last@sub.example.org", true},
		{"", false},
		{"no-at-sign", false},
		{"Name <a@b.com>", false},
		{"a@localhost", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidEmail(tt.in), tt.in)
	}
}

func TestContainsSuspicious(t *testing.T) {
	assert.True(t, ContainsSuspicious("<img onerror=x>"))
	assert.True(t, ContainsSuspicious("{{.Secret}}"))
	assert.False(t, ContainsSuspicious("deep sea diver"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", MaskEmail("john@example.com"))
	assert.Equal(t, "a***@b.com", MaskEmail("a@b.com"))
	assert.Equal(t, "***", MaskEmail("nope"))
}
