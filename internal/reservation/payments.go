package reservation

import (
	"errors"

	"github.com/google/uuid"
)

// ErrPaymentDeclined is returned by processors that refuse a charge or refund.
var ErrPaymentDeclined = errors.New("reservation: payment declined")

// PaymentProcessor issues charges and refunds for reservations. Implementations
// must not retain the transaction value.
type PaymentProcessor interface {
	Charge(t Transaction) (paymentID string, err error)
	Refund(t Transaction) (refundID string, err error)
}

// SimulatedPayments stands in for a payment provider. It never moves money.
type SimulatedPayments struct {
	// FailCharges makes every charge fail with ErrPaymentDeclined.
	FailCharges bool
	// FailRefunds makes every refund fail with ErrPaymentDeclined.
	FailRefunds bool
}

func (p SimulatedPayments) Charge(t Transaction) (string, error) {
	if p.FailCharges {
		return "", ErrPaymentDeclined
	}
	return "PAY-" + uuid.NewString(), nil
}

func (p SimulatedPayments) Refund(t Transaction) (string, error) {
	if p.FailRefunds {
		return "", ErrPaymentDeclined
	}
	return "REF-" + uuid.NewString(), nil
}
