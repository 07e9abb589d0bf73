package model

// RoleID identifies a role in the access-control graph
type RoleID uint64

// Privilege names an action a grant can confer
type Privilege string

const (
	PrivilegeOwnership   Privilege = "OWNERSHIP"
	PrivilegeUsage       Privilege = "USAGE"
	PrivilegeSelect      Privilege = "SELECT"
	PrivilegeInsert      Privilege = "INSERT"
	PrivilegeUpdate      Privilege = "UPDATE"
	PrivilegeDelete      Privilege = "DELETE"
	PrivilegeCreateTable Privilege = "CREATE TABLE"
)

// CoversChildren reports whether a grant of this privilege on a parent
// object ref also covers objects nested beneath it. Only ownership is
// containing; usage on a database never substitutes for a table privilege.
func (p Privilege) CoversChildren() bool {
	return p == PrivilegeOwnership
}

// ObjectRef names a securable object as a dot-separated hierarchy,
// e.g. "tables" or "tables.orders".
type ObjectRef string

// Child returns the ref of an object nested one level beneath r
func (r ObjectRef) Child(name string) ObjectRef {
	return ObjectRef(string(r) + "." + name)
}

// Role is a node in the role DAG. Parents are the roles this role inherits
// from; the graph may form diamonds but never cycles.
type Role struct {
	RoleID  RoleID          `json:"role_id"`
	Name    string          `json:"name"`
	Parents map[RoleID]bool `json:"parents,omitempty"`
}

// Grant confers a privilege on an object to a role
type Grant struct {
	RoleID    RoleID    `json:"role_id"`
	Privilege Privilege `json:"privilege"`
	ObjectRef ObjectRef `json:"object_ref"`
}
