package session

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Role distinguishes regular attendees from event organizers.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
)

// Credentials supplies the bearer token for REST and socket authentication.
// Token issuance and refresh are owned elsewhere; this package only reads.
type Credentials interface {
	Token() string
	Role() Role
}

// Static holds a fixed token, for sessions whose token is handed in at
// construction time.
type Static struct {
	token string
	role  Role
}

func NewStatic(token string, role Role) *Static {
	if role == "" {
		role = RoleUser
	}
	return &Static{token: token, role: role}
}

func (s *Static) Token() string { return s.token }
func (s *Static) Role() Role    { return s.role }

// UserIDFromToken extracts the local user's id from the bearer token claims.
// The token is not verified here; the server is the verifier and the client
// only needs its own id for self-echo suppression.
func UserIDFromToken(token string) (int, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, errors.Wrap(err, "parse token")
	}

	if v, ok := claims["user_id"]; ok {
		if id, ok := numericID(v); ok {
			return id, nil
		}
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		if id, err := strconv.Atoi(sub); err == nil {
			return id, nil
		}
	}
	return 0, errors.New("token carries no numeric user id")
}

func numericID(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		id, err := strconv.Atoi(n)
		return id, err == nil
	}
	return 0, false
}
