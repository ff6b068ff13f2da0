package enums

// PrescriptionDecision is a vendor verdict on a prescription.
type PrescriptionDecision string

const (
	PrescriptionDecisionApprove PrescriptionDecision = "approve"
	PrescriptionDecisionReject  PrescriptionDecision = "reject"
)

var validPrescriptionDecisions = []PrescriptionDecision{
	PrescriptionDecisionApprove,
	PrescriptionDecisionReject,
}

// String implements fmt.Stringer.
func (p PrescriptionDecision) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PrescriptionDecision.
func (p PrescriptionDecision) IsValid() bool {
	return member(validPrescriptionDecisions, p)
}

// ParsePrescriptionDecision converts raw input into a PrescriptionDecision.
func ParsePrescriptionDecision(value string) (PrescriptionDecision, error) {
	return parse("prescription decision", validPrescriptionDecisions, value)
}
