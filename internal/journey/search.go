// Package journey finds direct and one-stop flight journeys in a catalog of
// scheduled legs.
//
// The engine is a pure function of (catalog, query): it holds no state
// between calls, does no I/O and never fails. No-match conditions of any
// kind produce an empty result.
package journey

import (
	"errors"
	"fmt"
)

// Query is a validated search request.
type Query struct {
	Date        Date
	Origin      string
	Destination string
}

// Validate checks the shape of the query. The engine assumes it has passed.
func (q Query) Validate() error {
	if q.Date.IsZero() {
		return errors.New("missing date")
	}
	if !IsIATACode(q.Origin) {
		return fmt.Errorf("origin %q is not a 3-letter IATA code", q.Origin)
	}
	if !IsIATACode(q.Destination) {
		return fmt.Errorf("destination %q is not a 3-letter IATA code", q.Destination)
	}
	return nil
}

// FilterByDate keeps the legs whose UTC departure date falls on date or the
// day after, preserving their order.
func FilterByDate(legs []FlightLeg, date Date) []FlightLeg {
	last := date.Next()

	var out []FlightLeg
	for _, l := range legs {
		d := DateOf(l.DepartureTime)
		if d.Compare(date) >= 0 && d.Compare(last) <= 0 {
			out = append(out, l)
		}
	}
	return out
}

// Search returns every valid journey for q in catalog: direct journeys first,
// connecting journeys second.
func Search(catalog []FlightLeg, q Query) []Journey {
	return SearchIndex(NewIndex(FilterByDate(catalog, q.Date)), q.Origin, q.Destination)
}

// SearchIndex runs both matchers over an already filtered and indexed catalog.
func SearchIndex(idx *Index, origin, destination string) []Journey {
	if !idx.HasDeparture(origin) || !idx.HasArrival(destination) {
		return nil
	}

	journeys := DirectJourneys(idx, origin, destination)
	return append(journeys, ConnectingJourneys(idx, origin, destination)...)
}
