package enums

// ApprovalStatus is the admin review state for pharmacies and volunteers.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

var validApprovalStatuses = []ApprovalStatus{
	ApprovalStatusPending,
	ApprovalStatusApproved,
	ApprovalStatusRejected,
}

// String implements fmt.Stringer.
func (a ApprovalStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ApprovalStatus.
func (a ApprovalStatus) IsValid() bool {
	return member(validApprovalStatuses, a)
}

// ParseApprovalStatus converts raw input into a ApprovalStatus.
func ParseApprovalStatus(value string) (ApprovalStatus, error) {
	return parse("approval status", validApprovalStatuses, value)
}
