package analytics

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Metric is a finite number or an explicit "no data" value, which
// serializes as JSON null. It never holds NaN or an infinity.
type Metric struct {
	value   float64
	defined bool
}

// Value returns a defined metric. Non-finite inputs become NoData.
func Value(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoData()
	}
	return Metric{value: v, defined: true}
}

// NoData returns the sentinel for an undefined ratio or mean.
func NoData() Metric {
	return Metric{}
}

// Float returns the value and whether it is defined.
func (m Metric) Float() (float64, bool) {
	return m.value, m.defined
}

func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.defined {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(m.value, 'f', -1, 64)), nil
}

func (m *Metric) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = NoData()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Value(v)
	return nil
}

// ratio divides once and rounds to four decimal places. A zero denominator yields NoData.
func ratio(num, den int64) Metric {
	if den == 0 {
		return NoData()
	}
	return Value(round4(float64(num) / float64(den)))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
