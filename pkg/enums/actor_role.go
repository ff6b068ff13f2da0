package enums

// ActorRole is the platform role carried in access tokens.
type ActorRole string

const (
	ActorRoleCustomer  ActorRole = "customer"
	ActorRoleVendor    ActorRole = "vendor"
	ActorRoleVolunteer ActorRole = "volunteer"
	ActorRoleAdmin     ActorRole = "admin"
	ActorRoleSystem    ActorRole = "system"
)

var validActorRoles = []ActorRole{
	ActorRoleCustomer,
	ActorRoleVendor,
	ActorRoleVolunteer,
	ActorRoleAdmin,
	ActorRoleSystem,
}

// String implements fmt.Stringer.
func (a ActorRole) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorRole.
func (a ActorRole) IsValid() bool {
	return member(validActorRoles, a)
}

// ParseActorRole converts raw input into a ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return parse("actor role", validActorRoles, value)
}
