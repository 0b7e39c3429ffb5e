package app

import (
	"testing"
	"time"
)

// AuthService depends on the concrete GORM user repository, so unit
// coverage here sticks to pure input validation; credential flows are
// covered end to end against a real database.

func TestRegisterValidation(t *testing.T) {
	svc := NewAuthService(nil, NewSessionResolver(newFakeSessionStore()), "secret", time.Hour)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"missing at sign", "not-an-email", "password123"},
		{"empty email", "", "password123"},
		{"short password", "a@b.com", "short"},
		{"empty password", "a@b.com", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(RegisterInput{Email: tc.email, Password: tc.password})
			if err != ErrInvalidInput {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
