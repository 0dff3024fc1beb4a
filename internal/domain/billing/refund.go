package billing

import "github.com/shopspring/decimal"

// CreditsToRevoke returns ceil(totalCredits * refunded / original), clamped to
// [0, totalCredits]. A non-positive original amount revokes nothing.
func CreditsToRevoke(originalAmount, refundedAmount, totalCredits int64) int64 {
	if originalAmount <= 0 || refundedAmount <= 0 || totalCredits <= 0 {
		return 0
	}

	credits := decimal.NewFromInt(totalCredits).
		Mul(decimal.NewFromInt(refundedAmount)).
		Div(decimal.NewFromInt(originalAmount))

	// Div rounds to DivisionPrecision digits; compare against the exact product
	// so 1/3-style fractions do not round down to an integer before Ceil.
	revoke := credits.Ceil().IntPart()
	if decimal.NewFromInt(revoke).Mul(decimal.NewFromInt(originalAmount)).
		LessThan(decimal.NewFromInt(totalCredits).Mul(decimal.NewFromInt(refundedAmount))) {
		revoke++
	}

	if revoke > totalCredits {
		return totalCredits
	}
	return revoke
}
