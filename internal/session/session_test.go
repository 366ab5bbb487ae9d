package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestUserIDFromToken(t *testing.T) {
	tests := []struct {
		name      string
		claims    jwt.MapClaims
		want      int
		shouldErr bool
	}{
		{
			name:   "user_id claim",
			claims: jwt.MapClaims{"user_id": float64(42)},
			want:   42,
		},
		{
			name:   "string user_id claim",
			claims: jwt.MapClaims{"user_id": "42"},
			want:   42,
		},
		{
			name:   "numeric subject fallback",
			claims: jwt.MapClaims{"sub": "17"},
			want:   17,
		},
		{
			name:      "no usable claim",
			claims:    jwt.MapClaims{"sub": "not-a-number"},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UserIDFromToken(signed(t, tt.claims))
			if (err != nil) != tt.shouldErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.shouldErr)
			}
			if !tt.shouldErr && got != tt.want {
				t.Errorf("user id = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUserIDFromGarbageToken(t *testing.T) {
	if _, err := UserIDFromToken("not-a-jwt"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestStaticCredentials(t *testing.T) {
	creds := NewStatic("tok", "")
	if creds.Token() != "tok" {
		t.Errorf("token = %q", creds.Token())
	}
	if creds.Role() != RoleUser {
		t.Errorf("default role = %q, want user", creds.Role())
	}

	org := NewStatic("tok", RoleOrganizer)
	if org.Role() != RoleOrganizer {
		t.Errorf("role = %q, want organizer", org.Role())
	}
}
