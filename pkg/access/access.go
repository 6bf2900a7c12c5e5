// Package access implements Karabo's operator credential gate: each
// karabo-ctl session authenticates once against a bcrypt-hashed
// password file, producing a schema.AccessLevel compared against a
// schema element's requiredAccessLevel attribute.
package access

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/newtron-network/karabo/pkg/schema"
)

// DeniedError reports an access-level gate failure.
type DeniedError struct {
	Have     schema.AccessLevel
	Required schema.AccessLevel
	Path     string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: level %s required for %q, session has %s", e.Required, e.Path, e.Have)
}

// Credential is one entry in the operator credential store: a username
// and its bcrypt-hashed password, plus the access level it grants.
type Credential struct {
	Username     string
	PasswordHash []byte
	Level        schema.AccessLevel
}

// Store holds the configured operator credentials for one device
// server or karabo-ctl deployment.
type Store struct {
	byUsername map[string]Credential
}

// NewStore builds a Store from a set of credentials (typically loaded
// from serverconfig's YAML document).
func NewStore(creds []Credential) *Store {
	s := &Store{byUsername: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		s.byUsername[c.Username] = c
	}
	return s
}

// HashPassword bcrypt-hashes a plaintext password for storage in
// configuration.
func HashPassword(plaintext string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
}

// Authenticate verifies username/password and returns the granted
// schema.AccessLevel on success.
func (s *Store) Authenticate(username, password string) (schema.AccessLevel, error) {
	cred, ok := s.byUsername[username]
	if !ok {
		return 0, fmt.Errorf("access: unknown user %q", username)
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return 0, fmt.Errorf("access: invalid credentials for %q", username)
	}
	return cred.Level, nil
}

// Session is the result of a successful Authenticate, carried for the
// lifetime of one karabo-ctl invocation or device-server admin
// connection.
type Session struct {
	Username string
	Level    schema.AccessLevel
}

// Gate checks a schema path's requiredAccessLevel attribute (if any)
// against the session's level, returning a *DeniedError on failure. A
// path with no requiredAccessLevel attribute is always permitted
// (callers pass schema.AccessLevelObserver as required in that case).
func (sess Session) Gate(path string, required schema.AccessLevel) error {
	if sess.Level >= required {
		return nil
	}
	return &DeniedError{Have: sess.Level, Required: required, Path: path}
}

// GateSchema resolves path's requiredAccessLevel attribute from s (if
// any) and gates the session against it in one call — the shape
// SlotReconfigure/Call callers reach for directly.
func (sess Session) GateSchema(s *schema.Schema, path string) error {
	required, ok := s.RequiredAccessLevel(path)
	if !ok {
		return nil
	}
	return sess.Gate(path, required)
}
