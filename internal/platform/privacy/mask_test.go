package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "international", input: "+919876543210", expected: "+91******3210"},
		{name: "national", input: "9876543210", expected: "******3210"},
		{name: "short", input: "12345", expected: "*****"},
		{name: "empty", input: "", expected: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhone(tt.input))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "r***@example.com", MaskEmail("ravi@example.com"))
	assert.Equal(t, "unknown", MaskEmail("not-an-email"))
}
