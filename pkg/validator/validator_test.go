package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRegister(t *testing.T) {
	errs := ValidateRegister("not-an-email", "a!", "", "short")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "username")
	assert.Contains(t, errs, "password")
	assert.NotContains(t, errs, "display_name")

	errs = ValidateRegister("ana@example.com", "ana", "Ana", "password1")
	assert.Equal(t, "Password must contain at least one uppercase letter", errs["password"])

	assert.False(t, ValidateRegister("ana@example.com", "ana", "Ana", "Password1").HasErrors())
}

func TestValidateChannel(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"general", true},
		{"team-ops", true},
		{"dm-0b5e-1c3a", true},
		{"g", false},
		{"General", false},
		{"two words", false},
		{"-leading", false},
		{strings.Repeat("x", 101), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, !ValidateChannel(tt.name).HasErrors())
		})
	}
}

func TestValidateMessage(t *testing.T) {
	assert.False(t, ValidateMessage("hi", "tmp-1").HasErrors())
	assert.Contains(t, ValidateMessage("   ", ""), "content")
	assert.Contains(t, ValidateMessage(strings.Repeat("é", MaxMessageLength+1), ""), "content")
	assert.Contains(t, ValidateMessage("hi", strings.Repeat("x", MaxClientIDLength+1)), "client_id")
}
