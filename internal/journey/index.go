package journey

import "slices"

// departures holds every route leaving one city. Arrival cities are kept in
// first-seen catalog order so iteration is deterministic.
type departures struct {
	arrivals []string
	routes   map[string][]FlightLeg
}

// Index groups legs by departure city, then arrival city. Every route is
// sorted ascending by departure time. An Index is never mutated after
// NewIndex returns and may be shared between goroutines.
type Index struct {
	byDeparture map[string]*departures
	arrivals    map[string]struct{}
	size        int
}

// NewIndex builds an Index over legs. Duplicate flight numbers are kept.
func NewIndex(legs []FlightLeg) *Index {
	idx := &Index{
		byDeparture: make(map[string]*departures),
		arrivals:    make(map[string]struct{}),
		size:        len(legs),
	}

	for _, l := range legs {
		d, ok := idx.byDeparture[l.DepartureCity]
		if !ok {
			d = &departures{routes: make(map[string][]FlightLeg)}
			idx.byDeparture[l.DepartureCity] = d
		}
		if _, seen := d.routes[l.ArrivalCity]; !seen {
			d.arrivals = append(d.arrivals, l.ArrivalCity)
		}
		d.routes[l.ArrivalCity] = append(d.routes[l.ArrivalCity], l)
		idx.arrivals[l.ArrivalCity] = struct{}{}
	}

	// Stable, so legs departing at the same instant keep catalog order.
	for _, d := range idx.byDeparture {
		for _, route := range d.routes {
			slices.SortStableFunc(route, func(a, b FlightLeg) int {
				return a.DepartureTime.Compare(b.DepartureTime)
			})
		}
	}

	return idx
}

// Route returns the legs flying from -> to, sorted by departure time.
// The returned slice must not be modified.
func (idx *Index) Route(from, to string) []FlightLeg {
	d, ok := idx.byDeparture[from]
	if !ok {
		return nil
	}
	return d.routes[to]
}

// Arrivals returns the cities reachable directly from the given city, in
// first-seen catalog order. The returned slice must not be modified.
func (idx *Index) Arrivals(from string) []string {
	d, ok := idx.byDeparture[from]
	if !ok {
		return nil
	}
	return d.arrivals
}

// HasDeparture reports whether any leg departs from city.
func (idx *Index) HasDeparture(city string) bool {
	_, ok := idx.byDeparture[city]
	return ok
}

// HasArrival reports whether any leg arrives at city.
func (idx *Index) HasArrival(city string) bool {
	_, ok := idx.arrivals[city]
	return ok
}

// Len is the number of indexed legs.
func (idx *Index) Len() int {
	return idx.size
}
