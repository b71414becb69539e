package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Duration is a config duration as written in the file: a Go duration
// string ("250ms", "5s") or a bare number of seconds (5, "1.5").
type Duration string

// UnmarshalJSON accepts both JSON strings and JSON numbers, so YAML
// `tick: 1` and `tick: 1s` both decode.
func (d *Duration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = Duration(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds: %s", b)
	}
	*d = Duration(n.String())
	return nil
}

var ErrNegativeDuration = errors.New("duration must not be negative")

// FieldError names the config key a bad value came from.
type FieldError struct {
	Path  string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: invalid duration %q: %v", e.Path, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Parse resolves d. set is false for a blank value.
func (d Duration) Parse(path string) (v time.Duration, set bool, err error) {
	s := strings.TrimSpace(string(d))
	if s == "" {
		return 0, false, nil
	}
	if secs, nerr := strconv.ParseFloat(s, 64); nerr == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
			return 0, false, &FieldError{Path: path, Value: s, Err: errors.New("out of range")}
		}
		v = time.Duration(secs * float64(time.Second))
	} else if v, err = time.ParseDuration(s); err != nil {
		return 0, false, &FieldError{Path: path, Value: s, Err: err}
	}
	if v < 0 {
		return 0, false, &FieldError{Path: path, Value: s, Err: ErrNegativeDuration}
	}
	return v, true, nil
}

// Or resolves d and falls back to def when it is blank or zero. Protocol
// intervals use it: a zero tick or check interval is never meaningful.
func (d Duration) Or(path string, def time.Duration) (time.Duration, error) {
	v, set, err := d.Parse(path)
	if err != nil {
		return 0, err
	}
	if !set || v == 0 {
		return def, nil
	}
	return v, nil
}
