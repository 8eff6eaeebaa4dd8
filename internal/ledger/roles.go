package ledger

import (
	"fmt"
	"strings"
)

// Principal is an opaque account identifier such as a wallet address.
type Principal string

// Normalize trims whitespace. Only 0x-prefixed hex addresses are lowercased;
// every other encoding is case-sensitive and kept as given.
func (p Principal) Normalize() Principal {
	s := strings.TrimSpace(string(p))
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = strings.ToLower(s)
	}
	return Principal(s)
}

// IsZero reports whether the principal is empty.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(string(p)) == ""
}

func (p Principal) String() string {
	return string(p)
}

// Role enumerates the closed set of ledger roles.
type Role uint8

const (
	RoleNone Role = iota
	RoleRootAuthority
	RoleCountryAdmin
	RoleStateAdmin
	RoleCityAdmin
	RoleProducer
	RoleBuyer
)

// String returns the wire name of the role.
func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleRootAuthority:
		return "ROOT_AUTHORITY"
	case RoleCountryAdmin:
		return "COUNTRY_ADMIN"
	case RoleStateAdmin:
		return "STATE_ADMIN"
	case RoleCityAdmin:
		return "CITY_ADMIN"
	case RoleProducer:
		return "PRODUCER"
	case RoleBuyer:
		return "BUYER"
	default:
		return fmt.Sprintf("ROLE(%d)", uint8(r))
	}
}

// ParseRole converts a wire name back into a Role.
func ParseRole(raw string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ROOT_AUTHORITY":
		return RoleRootAuthority, nil
	case "COUNTRY_ADMIN":
		return RoleCountryAdmin, nil
	case "STATE_ADMIN":
		return RoleStateAdmin, nil
	case "CITY_ADMIN", "CERTIFIER":
		return RoleCityAdmin, nil
	case "PRODUCER":
		return RoleProducer, nil
	case "BUYER":
		return RoleBuyer, nil
	default:
		return RoleNone, fmt.Errorf("ledger: unknown role %q", raw)
	}
}

// IsAdmin reports whether the role carries administrative authority.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleRootAuthority, RoleCountryAdmin, RoleStateAdmin, RoleCityAdmin:
		return true
	case RoleNone, RoleProducer, RoleBuyer:
		return false
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	if string(text) == "NONE" || len(text) == 0 {
		*r = RoleNone
		return nil
	}
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// compatible decides whether a principal currently holding held may take
// requested. A principal holds at most one role, so anything but an empty
// slot is a conflict; holding the exact role already is reported separately.
func compatible(held, requested Role) error {
	switch {
	case held == RoleNone:
		return nil
	case held == requested:
		return ErrAlreadyAssigned
	default:
		return ErrRoleConflict
	}
}
