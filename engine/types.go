/*
Package engine provides the core types shared by the leave approval system.

PURPOSE:
  This package contains the domain vocabulary every other package speaks:
  typed identifiers, the closed applicant/leave-type enums, day amounts,
  calendar dates, and the error taxonomy. It has no dependencies on
  storage or transport.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity of leave days (decimal, so half-days are exact)
  - OfficerID / PositionID / ApplicationID / EntryID: Type-safe identifiers
  - ApplicantType: Closed enum {officer, staff}
  - LeaveType: Closed enum {casual, sick, earned}

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing officer/position IDs
  3. Closed enums: applicant type and leave type are rejected at the boundary
     if unrecognized, never carried as free-form strings

SEE ALSO:
  - date.go: Calendar date type and range enumeration
  - errors.go: Error taxonomy
  - calendar.go: Working-day pricing
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity of leave days
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount       { return Amount{Value: decimal.NewFromFloat(value)} }
func NewAmountFromInt(value int) Amount    { return Amount{Value: decimal.NewFromInt(int64(value))} }
func ZeroAmount() Amount                   { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) Float64() float64          { f, _ := a.Value.Float64(); return f }
func (a Amount) String() string            { return a.Value.String() }

func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{Value: d}, nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OfficerID string
type PositionID string
type ApplicationID string
type EntryID string

// =============================================================================
// APPLICANT TYPE - Closed enum, which hierarchy chain applies
// =============================================================================

type ApplicantType string

const (
	ApplicantOfficer ApplicantType = "officer"
	ApplicantStaff   ApplicantType = "staff"
)

// ParseApplicantType rejects anything outside the closed set.
func ParseApplicantType(s string) (ApplicantType, error) {
	switch ApplicantType(s) {
	case ApplicantOfficer, ApplicantStaff:
		return ApplicantType(s), nil
	default:
		return "", fmt.Errorf("unknown applicant type %q", s)
	}
}

func (a ApplicantType) Valid() bool {
	return a == ApplicantOfficer || a == ApplicantStaff
}

// =============================================================================
// LEAVE TYPE - Closed enum
// =============================================================================

type LeaveType string

const (
	LeaveCasual LeaveType = "casual"
	LeaveSick   LeaveType = "sick"
	LeaveEarned LeaveType = "earned"
)

func ParseLeaveType(s string) (LeaveType, error) {
	switch LeaveType(s) {
	case LeaveCasual, LeaveSick, LeaveEarned:
		return LeaveType(s), nil
	default:
		return "", fmt.Errorf("unknown leave type %q", s)
	}
}

func (l LeaveType) Valid() bool {
	return l == LeaveCasual || l == LeaveSick || l == LeaveEarned
}

// LeaveTypes lists all leave types, in display order.
func LeaveTypes() []LeaveType {
	return []LeaveType{LeaveCasual, LeaveSick, LeaveEarned}
}
