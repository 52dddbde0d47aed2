package model

// Role is a user's organisational role. The set is closed.
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleDirector          Role = "DIRECTOR"
	RoleOperationsManager Role = "OPERATIONS_MANAGER"
	RoleSupervisor        Role = "SUPERVISOR"
	RoleGuard             Role = "GUARD"
	RoleClient            Role = "CLIENT"
)

// RoleInfo is the display metadata for a role.
type RoleInfo struct {
	Label      string `json:"label"`
	ColorToken string `json:"color_token"`
}

// Roles lists every role in display order.
var Roles = []Role{
	RoleAdmin,
	RoleDirector,
	RoleOperationsManager,
	RoleSupervisor,
	RoleGuard,
	RoleClient,
}

var roleInfo = map[Role]RoleInfo{
	RoleAdmin:             {Label: "Administrator", ColorToken: "red"},
	RoleDirector:          {Label: "Director", ColorToken: "purple"},
	RoleOperationsManager: {Label: "Operations Manager", ColorToken: "indigo"},
	RoleSupervisor:        {Label: "Supervisor", ColorToken: "blue"},
	RoleGuard:             {Label: "Security Guard", ColorToken: "green"},
	RoleClient:            {Label: "Client", ColorToken: "gray"},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleInfo[r]
	return ok
}

// Info returns the label and color token of r. Unknown roles get a neutral entry.
func (r Role) Info() RoleInfo {
	if info, ok := roleInfo[r]; ok {
		return info
	}
	return RoleInfo{Label: string(r), ColorToken: "gray"}
}

// User is a read-only directory entry.
type User struct {
	ID     string `json:"id" toml:"id"`
	Name   string `json:"name" toml:"name"`
	Role   Role   `json:"role" toml:"role"`
	Region string `json:"region,omitempty" toml:"region"`
	Avatar string `json:"avatar,omitempty" toml:"avatar"`
	Phone  string `json:"phone,omitempty" toml:"phone"`
}

// ContactGroup is a set of contacts sharing a role.
type ContactGroup struct {
	Role     Role   `json:"role"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Contacts []User `json:"contacts"`
}
