package domain

// PurchaseOutcome is the result of the atomic reservation attempt.
type PurchaseOutcome int

const (
	OutcomeSoldOut PurchaseOutcome = iota
	OutcomeGranted
	OutcomeDuplicate
)

func (o PurchaseOutcome) String() string {
	switch o {
	case OutcomeSoldOut:
		return "sold_out"
	case OutcomeGranted:
		return "granted"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}
