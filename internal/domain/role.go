package domain

type Role string

const (
	RoleViewer     Role = "VIEWER"
	RoleMember     Role = "MEMBER"
	RoleMaintainer Role = "MAINTAINER"
	RoleOwner      Role = "OWNER"
)

var roleLevels = map[Role]int{
	RoleViewer:     1,
	RoleMember:     2,
	RoleMaintainer: 3,
	RoleOwner:      4,
}

func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// AtLeast reports whether r grants at least the privileges of other.
func (r Role) AtLeast(other Role) bool {
	return roleLevels[r] >= roleLevels[other]
}

// MaxRole returns the highest-privilege role of the two.
func MaxRole(a, b Role) Role {
	if roleLevels[a] >= roleLevels[b] {
		return a
	}
	return b
}
