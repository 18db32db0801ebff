// Package money provides exact integer arithmetic for monetary amounts.
// All amounts in the system are minor units (cents); floating point is
// never used for money.
package money

import "fmt"

// Cents is a monetary amount in integer minor units.
type Cents int64

// Zero is the additive identity.
const Zero Cents = 0

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// IsNegative reports whether the amount is below zero.
func (c Cents) IsNegative() bool { return c < 0 }

// String formats the amount as a decimal currency string, e.g. 150000 ->
// "1500.00". Used in log lines and exception descriptions only; storage and
// wire formats always carry the raw integer.
func (c Cents) String() string {
	sign := ""
	v := c
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Min returns the smaller of two amounts.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}
