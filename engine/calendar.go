/*
calendar.go - Working-day pricing with overlap deduplication

PURPOSE:
  Computes how many days a leave request actually bills against the
  officer's allocation. A day that overlaps a previously approved leave
  range is never billed twice, no matter how the surrounding requests
  are shaped.

INVARIANT:
  Pricing is idempotent and order-independent. If Jan 3 is already
  approved, pricing [Jan 1, Jan 5] yields 4, not 5 — and yields 4
  whether Jan 3 was approved before or after this range was first
  considered.

WEEKENDS:
  Deliberately NOT excluded. The count is pure calendar-day
  deduplication against previously committed leave; a Saturday inside
  the range bills like any other day.

SEE ALSO:
  - workflow/workflow.go: Collects the approved-day set and calls Price
*/
package engine

// WorkingDayCalculator prices leave requests. It is a pure function over
// its inputs: the same range and approved set always yield the same count.
type WorkingDayCalculator struct{}

// Price returns the number of billable days for [start, end] inclusive,
// excluding dates already present in alreadyApproved.
// Returns ErrInvalidDateRange if end precedes start.
func (WorkingDayCalculator) Price(start, end Date, alreadyApproved DateSet) (int, error) {
	r := DateRange{Start: start, End: end}
	if !r.Valid() {
		return 0, ErrInvalidDateRange
	}

	billable := 0
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if alreadyApproved.Contains(d) {
			continue
		}
		billable++
	}
	return billable, nil
}

// BillableDays returns the dates Price would bill, in calendar order.
// Used by the workflow to record exactly which days an application holds.
func (WorkingDayCalculator) BillableDays(start, end Date, alreadyApproved DateSet) ([]Date, error) {
	r := DateRange{Start: start, End: end}
	if !r.Valid() {
		return nil, ErrInvalidDateRange
	}

	var days []Date
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if alreadyApproved.Contains(d) {
			continue
		}
		days = append(days, d)
	}
	return days, nil
}
