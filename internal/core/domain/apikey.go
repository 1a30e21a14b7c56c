package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AccessLevel is an ordered capability attached to an API key.
// The zero value is not a valid level.
type AccessLevel int

const (
	// AccessReadOnly allows safe methods only.
	AccessReadOnly AccessLevel = iota + 1
	// AccessReadWrite additionally allows POST, PUT and DELETE.
	AccessReadWrite
)

const (
	accessReadOnlyName  = "READ_ONLY"
	accessReadWriteName = "READ_WRITE"
)

// ParseAccessLevel parses the wire name of an access level.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case accessReadOnlyName:
		return AccessReadOnly, nil
	case accessReadWriteName:
		return AccessReadWrite, nil
	default:
		return 0, fmt.Errorf("unknown access level %q", s)
	}
}

// Valid reports whether l is a known level.
func (l AccessLevel) Valid() bool {
	return l == AccessReadOnly || l == AccessReadWrite
}

// Covers reports whether l grants at least the required level.
func (l AccessLevel) Covers(required AccessLevel) bool {
	return l.Valid() && l >= required
}

func (l AccessLevel) String() string {
	switch l {
	case AccessReadOnly:
		return accessReadOnlyName
	case AccessReadWrite:
		return accessReadWriteName
	default:
		return fmt.Sprintf("AccessLevel(%d)", int(l))
	}
}

// MarshalJSON encodes the level by name.
func (l AccessLevel) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes the level by name. null leaves the zero value.
func (l *AccessLevel) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("access level must be a string: %w", err)
	}
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Value stores the level by name.
func (l AccessLevel) Value() (driver.Value, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid access level %d", int(l))
	}
	return l.String(), nil
}

// Scan reads a level stored by name.
func (l *AccessLevel) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into AccessLevel", src)
	}
	parsed, err := ParseAccessLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MaxOwnerNameLength bounds APIKey.OwnerName.
const MaxOwnerNameLength = 100

// KeyValueLength is the length of a generated key value.
const KeyValueLength = 64

// APIKey is a credential presented in the X-API-Key header.
type APIKey struct {
	ID          int64       `json:"id" db:"id"`
	KeyValue    string      `json:"keyValue,omitempty" db:"key_value"`
	OwnerName   string      `json:"ownerName" db:"owner_name"`
	AccessLevel AccessLevel `json:"accessLevel" db:"access_level"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	ExpiresAt   *time.Time  `json:"expiresAt,omitempty" db:"expires_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Clone returns a copy that shares no memory with k.
func (k APIKey) Clone() APIKey {
	if k.ExpiresAt != nil {
		t := *k.ExpiresAt
		k.ExpiresAt = &t
	}
	return k
}

// Redacted returns a copy without the key value.
func (k APIKey) Redacted() APIKey {
	k.KeyValue = ""
	return k
}

// ValidateAPIKeyInput checks the caller-supplied fields of a new key.
func ValidateAPIKeyInput(ownerName string, level AccessLevel) error {
	verr := &ValidationError{}
	owner := strings.TrimSpace(ownerName)
	switch {
	case owner == "":
		verr.Add("ownerName", "não deve estar em branco")
	case len([]rune(ownerName)) > MaxOwnerNameLength:
		verr.Add("ownerName", fmt.Sprintf("tamanho deve ser entre 0 e %d", MaxOwnerNameLength))
	}
	if !level.Valid() {
		verr.Add("accessLevel", "não deve ser nulo")
	}
	if verr.HasViolations() {
		return verr
	}
	return nil
}
