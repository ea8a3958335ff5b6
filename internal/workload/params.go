package workload

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports a rejected workload request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// Params describes one load test run against Host.
type Params struct {
	Host           string  `json:"host"`
	Users          uint64  `json:"users"`
	SpawnRate      float64 `json:"spawnRate"`
	RunTimeMinutes float64 `json:"runTimeMinutes"`
}

// number decodes a JSON number or numeric string. Anything else decodes to
// NaN so that validation rejects it.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f = math.NaN()
	}
	*n = number(f)
	return nil
}

type rawParams struct {
	Host           json.RawMessage `json:"host"`
	Users          *number         `json:"users"`
	SpawnRate      *number         `json:"spawnRate"`
	RunTimeMinutes *number         `json:"runTimeMinutes"`
}

func positiveNumber(n *number) (float64, bool) {
	if n == nil {
		return 0, false
	}
	f := float64(*n)
	return f, isPositive(f)
}

// ParseParams decodes and validates a workload request body. Validation
// failures are returned as *ValidationError. An empty allowedHosts list
// allows every host.
func ParseParams(body []byte, allowedHosts []string) (Params, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Params{}, invalid("Missing payload")
	}
	var raw rawParams
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Params{}, invalid("Missing payload")
	}

	// A host that is not a JSON string counts as missing.
	var host string
	if raw.Host != nil {
		if err := json.Unmarshal(raw.Host, &host); err != nil {
			host = ""
		}
		host = strings.TrimSpace(host)
	}
	if host == "" {
		return Params{}, invalid("Host is required")
	}
	users, ok := positiveNumber(raw.Users)
	if !ok || users != math.Trunc(users) || users > math.MaxInt32 {
		return Params{}, invalid("Users must be a positive number")
	}
	spawnRate, ok := positiveNumber(raw.SpawnRate)
	if !ok {
		return Params{}, invalid("Spawn rate must be a positive number")
	}
	runTime, ok := positiveNumber(raw.RunTimeMinutes)
	if !ok {
		return Params{}, invalid("Run time must be a positive number of minutes")
	}

	params := Params{
		Host:           host,
		Users:          uint64(users),
		SpawnRate:      spawnRate,
		RunTimeMinutes: runTime,
	}
	if err := params.Validate(allowedHosts); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Validate checks already decoded Params.
func (p Params) Validate(allowedHosts []string) error {
	switch {
	case strings.TrimSpace(p.Host) == "":
		return invalid("Host is required")
	case p.Users == 0:
		return invalid("Users must be a positive number")
	case !isPositive(p.SpawnRate) || !fitsDuration(float64(time.Second)/p.SpawnRate):
		return invalid("Spawn rate must be a positive number")
	case !isPositive(p.RunTimeMinutes) || !fitsDuration(p.RunTimeMinutes*float64(time.Minute)):
		return invalid("Run time must be a positive number of minutes")
	case !hostAllowed(p.Host, allowedHosts):
		return invalid("Host not allowed")
	}
	return nil
}

// RunTime is the duration of the load test.
func (p Params) RunTime() time.Duration {
	return time.Duration(p.RunTimeMinutes * float64(time.Minute))
}

// fitsDuration reports whether ns nanoseconds convert to a time.Duration
// without overflowing.
func fitsDuration(ns float64) bool {
	return ns < math.MaxInt64
}

func isPositive(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f > 0
}

func hostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}
	for _, allowed := range allowedHosts {
		if allowed == host {
			return true
		}
	}
	return false
}
