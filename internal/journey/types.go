package journey

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxLayover is the longest accepted wait between two legs (inclusive).
	MaxLayover = 4 * time.Hour
	// MaxDuration caps first departure to final arrival (inclusive).
	MaxDuration = 24 * time.Hour
)

// ErrInvalidLeg is wrapped by every FlightLeg validation failure.
var ErrInvalidLeg = errors.New("invalid flight leg")

// FlightLeg is one scheduled flight segment. Values are only produced by
// NewFlightLeg or JSON decoding, both of which enforce arrival > departure.
type FlightLeg struct {
	FlightNumber  string    `json:"flight_number"`
	DepartureCity string    `json:"departure_city"`
	ArrivalCity   string    `json:"arrival_city"`
	DepartureTime time.Time `json:"departure_datetime"`
	ArrivalTime   time.Time `json:"arrival_datetime"`
}

// NewFlightLeg validates its input and returns a leg with both instants in UTC.
func NewFlightLeg(flightNumber, from, to string, departure, arrival time.Time) (FlightLeg, error) {
	if flightNumber == "" {
		return FlightLeg{}, fmt.Errorf("%w: empty flight number", ErrInvalidLeg)
	}
	if !IsIATACode(from) {
		return FlightLeg{}, fmt.Errorf("%w: flight %s: bad departure city %q", ErrInvalidLeg, flightNumber, from)
	}
	if !IsIATACode(to) {
		return FlightLeg{}, fmt.Errorf("%w: flight %s: bad arrival city %q", ErrInvalidLeg, flightNumber, to)
	}
	if !arrival.After(departure) {
		return FlightLeg{}, fmt.Errorf("%w: flight %s: arrival %s not after departure %s",
			ErrInvalidLeg, flightNumber, arrival.Format(time.RFC3339), departure.Format(time.RFC3339))
	}

	return FlightLeg{
		FlightNumber:  flightNumber,
		DepartureCity: from,
		ArrivalCity:   to,
		DepartureTime: departure.UTC(),
		ArrivalTime:   arrival.UTC(),
	}, nil
}

// Duration is the scheduled block time of the leg.
func (l FlightLeg) Duration() time.Duration {
	return l.ArrivalTime.Sub(l.DepartureTime)
}

// UnmarshalJSON decodes a leg and runs it through NewFlightLeg.
func (l *FlightLeg) UnmarshalJSON(data []byte) error {
	type raw FlightLeg
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}

	leg, err := NewFlightLeg(r.FlightNumber, r.DepartureCity, r.ArrivalCity, r.DepartureTime, r.ArrivalTime)
	if err != nil {
		return err
	}

	*l = leg
	return nil
}

// Journey is a direct flight (Connections == 0, one leg) or a one-stop
// itinerary (Connections == 1, two legs sharing the intermediate city).
type Journey struct {
	Connections int         `json:"connections"`
	Path        []FlightLeg `json:"path"`
}

func direct(l FlightLeg) Journey {
	return Journey{Connections: 0, Path: []FlightLeg{l}}
}

func connecting(first, second FlightLeg) Journey {
	return Journey{Connections: 1, Path: []FlightLeg{first, second}}
}

// Duration is the elapsed time from first departure to final arrival.
func (j Journey) Duration() time.Duration {
	if len(j.Path) == 0 {
		return 0
	}
	return j.Path[len(j.Path)-1].ArrivalTime.Sub(j.Path[0].DepartureTime)
}

// Layover returns the connection time, or zero for a direct journey.
func (j Journey) Layover() time.Duration {
	if len(j.Path) < 2 {
		return 0
	}
	return j.Path[1].DepartureTime.Sub(j.Path[0].ArrivalTime)
}

// IsIATACode reports whether s is exactly three uppercase ASCII letters.
func IsIATACode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
