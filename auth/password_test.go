package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndValidatePassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NoError(t, ValidatePassword("correct-horse", hash))
	assert.Error(t, ValidatePassword("wrong-horse", hash))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestCheckPasswordStrength(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		requireStrong bool
		wantErr       error
	}{
		{name: "too short", password: "short", requireStrong: false, wantErr: ErrPasswordTooShort},
		{name: "long enough, not required strong", password: "plainpassword", requireStrong: false, wantErr: nil},
		{name: "long but weak when strong required", password: "plainpassword", requireStrong: true, wantErr: ErrWeakPassword},
		{name: "meets strength requirements", password: "Strong1!pass", requireStrong: true, wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPasswordStrength(tt.password, tt.requireStrong)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("player_one"))
	assert.ErrorIs(t, ValidateUsername(""), ErrInvalidUsername)
	assert.ErrorIs(t, ValidateUsername("ab"), ErrInvalidUsername)
	assert.ErrorIs(t, ValidateUsername("has space"), ErrInvalidUsername)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(""))
	assert.NoError(t, ValidateEmail("player@example.com"))
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
}
