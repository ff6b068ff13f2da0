package enums

// PaymentStatus is the processor-side state of an order payment. A failed
// payment leaves the order pending so the customer can start a new intent.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	return member(validPaymentStatuses, p)
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parse("payment status", validPaymentStatuses, value)
}

// Settled reports whether the processor has captured funds for the order.
func (p PaymentStatus) Settled() bool {
	return p == PaymentStatusCompleted
}

// Retryable reports whether a new payment intent may be created.
func (p PaymentStatus) Retryable() bool {
	return p == PaymentStatusPending || p == PaymentStatusFailed
}
