package bench

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidPacing is returned when a Pacing has a negative bound or a
// minimum greater than its maximum.
var ErrInvalidPacing = errors.New("bench: pacing bounds must satisfy 0 <= min <= max")

// DefaultPacing waits between 100ms and 300ms between two requests.
var DefaultPacing = Pacing{Min: 100 * time.Millisecond, Max: 300 * time.Millisecond}

// Pacing is a uniform random wait applied between the successive requests of
// a simulated user.
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

// Between returns a Pacing drawing waits uniformly from [min, max].
func Between(min, max time.Duration) (Pacing, error) {
	p := Pacing{Min: min, Max: max}
	if err := p.Validate(); err != nil {
		return Pacing{}, err
	}
	return p, nil
}

// Constant returns a Pacing which always waits d.
func Constant(d time.Duration) Pacing {
	return Pacing{Min: d, Max: d}
}

// Validate checks the bounds of the Pacing.
func (p Pacing) Validate() error {
	if p.Min < 0 || p.Max < 0 || p.Min > p.Max {
		return errors.Wrapf(ErrInvalidPacing, "got [%s, %s]", p.Min, p.Max)
	}
	return nil
}

// Next returns the next wait. It is safe for concurrent use.
func (p Pacing) Next() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int63n(int64(p.Max-p.Min)+1))
}

// String returns a stringified version of the Pacing.
func (p Pacing) String() string {
	return "between(" + p.Min.String() + ", " + p.Max.String() + ")"
}
