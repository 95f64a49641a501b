package report

import (
	"fmt"
	"time"

	"skarbnik/internal/core"
)

const (
	Monthly Granularity = "monthly"
	Yearly  Granularity = "yearly"
)

// Granularity selects the calendar bucket entries are grouped into.
type Granularity string

// Builder computes reports over ledger snapshots. It carries only the
// organization's time zone; every method is deterministic in its inputs.
type Builder struct {
	loc *time.Location
}

func NewBuilder(loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{loc: loc}
}

// Period maps a timestamp to its containing period identifier, e.g.
// "2023-11" for monthly granularity or "2023" for yearly. Boundaries follow
// calendar months and years in the organization's time zone.
func (b *Builder) Period(t time.Time, g Granularity) string {
	local := t.In(b.loc)
	if g == Yearly {
		return fmt.Sprintf("%04d", local.Year())
	}
	return fmt.Sprintf("%04d-%02d", local.Year(), int(local.Month()))
}

// ExtraMonthlyReservations sums the recurring set-asides accrued up to asOf.
// Each reservation contributes its amount once per calendar month, starting
// with the month of its start date. A reservation whose start date is after
// asOf contributes nothing.
func (b *Builder) ExtraMonthlyReservations(reservations []Reservation, asOf time.Time) core.Money {
	var total core.Money
	for _, r := range reservations {
		n := monthlyOccurrences(r.StartDate.In(b.loc), asOf.In(b.loc))
		total.Cents += r.Amount.Cents * int64(n)
	}
	return total
}

// monthlyOccurrences counts the occurrences of a monthly schedule between
// start and asOf inclusive: start, one month later, and so on.
func monthlyOccurrences(start, asOf time.Time) int {
	if asOf.Before(start) {
		return 0
	}
	months := (asOf.Year()-start.Year())*12 + int(asOf.Month()) - int(start.Month())
	if asOf.Day() < start.Day() {
		months--
	}
	return months + 1
}
