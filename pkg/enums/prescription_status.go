package enums

// PrescriptionStatus is the vendor review state of an uploaded prescription.
type PrescriptionStatus string

const (
	PrescriptionStatusPending  PrescriptionStatus = "pending"
	PrescriptionStatusApproved PrescriptionStatus = "approved"
	PrescriptionStatusRejected PrescriptionStatus = "rejected"
)

var validPrescriptionStatuses = []PrescriptionStatus{
	PrescriptionStatusPending,
	PrescriptionStatusApproved,
	PrescriptionStatusRejected,
}

// String implements fmt.Stringer.
func (p PrescriptionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PrescriptionStatus.
func (p PrescriptionStatus) IsValid() bool {
	return member(validPrescriptionStatuses, p)
}

// ParsePrescriptionStatus converts raw input into a PrescriptionStatus.
func ParsePrescriptionStatus(value string) (PrescriptionStatus, error) {
	return parse("prescription status", validPrescriptionStatuses, value)
}
