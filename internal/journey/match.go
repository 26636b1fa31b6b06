package journey

import (
	"sort"
	"time"
)

// DirectJourneys returns one zero-connection journey per origin->destination
// leg whose duration does not exceed MaxDuration, in route order.
func DirectJourneys(idx *Index, origin, destination string) []Journey {
	var out []Journey
	for _, l := range idx.Route(origin, destination) {
		if l.Duration() <= MaxDuration {
			out = append(out, direct(l))
		}
	}
	return out
}

// ConnectingJourneys returns every one-stop journey origin -> X -> destination
// where the second leg departs 0 to MaxLayover after the first one lands and
// the whole trip takes at most MaxDuration. Both bounds are inclusive.
//
// Results are ordered by intermediate city (index order), then first leg,
// then second leg departure.
func ConnectingJourneys(idx *Index, origin, destination string) []Journey {
	var out []Journey
	for _, via := range idx.Arrivals(origin) {
		if via == destination || via == origin {
			continue
		}

		seconds := idx.Route(via, destination)
		if len(seconds) == 0 {
			continue
		}

		for _, first := range idx.Route(origin, via) {
			lo, hi := layoverWindow(seconds, first.ArrivalTime, first.ArrivalTime.Add(MaxLayover))
			for _, second := range seconds[lo:hi] {
				if second.ArrivalTime.Sub(first.DepartureTime) <= MaxDuration {
					out = append(out, connecting(first, second))
				}
			}
		}
	}
	return out
}

// layoverWindow returns the bounds [lo, hi) of the legs in sorted whose
// departure lies within [earliest, latest].
func layoverWindow(sorted []FlightLeg, earliest, latest time.Time) (int, int) {
	lo := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].DepartureTime.Before(earliest)
	})
	hi := lo + sort.Search(len(sorted)-lo, func(i int) bool {
		return sorted[lo+i].DepartureTime.After(latest)
	})
	return lo, hi
}
