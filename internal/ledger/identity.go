package ledger

import "strings"

// Role is the access level of an operator. READ can inspect but never
// resolve a negotiation; CONFIRM may confirm/acknowledge; ADMIN may do
// anything including reject and void.
type Role string

const (
	RoleRead    Role = "READ"
	RoleConfirm Role = "CONFIRM"
	RoleAdmin   Role = "ADMIN"
)

func (r Role) Valid() bool { return r == RoleRead || r == RoleConfirm || r == RoleAdmin }

// Credential is one configured operator: a shared token and a role.
type Credential struct {
	Token string `yaml:"token"`
	Role  Role   `yaml:"role"`
}

// Identity is a resolved operator. AnonUser with READ is the floor every
// failed resolution degrades to; resolution never errors.
type Identity struct {
	UserID string
	Role   Role
}

const AnonUser = "ANON"

// ResolveIdentity matches a claimed user id and token against the
// configured credential table. Unknown users, missing or mismatched tokens,
// and malformed roles all degrade to READ rather than failing.
func ResolveIdentity(userID, token string, users map[string]Credential) Identity {
	if strings.TrimSpace(userID) == "" {
		return Identity{UserID: AnonUser, Role: RoleRead}
	}

	uid := strings.ToUpper(strings.TrimSpace(userID))
	cred, ok := users[uid]
	if !ok || cred.Token == "" {
		return Identity{UserID: uid, Role: RoleRead}
	}

	if strings.TrimSpace(token) != cred.Token {
		return Identity{UserID: uid, Role: RoleRead}
	}

	role := Role(strings.ToUpper(string(cred.Role)))
	if !role.Valid() {
		role = RoleRead
	}
	return Identity{UserID: uid, Role: role}
}
