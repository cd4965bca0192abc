package model

// Role controls what an actor may see.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// Actor is the user acting in the current session.
type Actor struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor sees every lead.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// User is a roster entry that can log in with a passcode.
type User struct {
	Name     string `json:"name" mapstructure:"name" yaml:"name"`
	Role     Role   `json:"role" mapstructure:"role" yaml:"role"`
	Passcode string `json:"passcode" mapstructure:"passcode" yaml:"passcode"`
}

// Actor returns the session identity of the user.
func (u User) Actor() Actor { return Actor{Name: u.Name, Role: u.Role} }
