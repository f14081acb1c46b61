package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Number is an ergometer reading. ErgRace sends values either as JSON
// numbers or as numeric strings; both decode to the integer part of the
// value. Null and empty strings decode as absent.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	} else {
		text = string(raw)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric reading %q: %w", text, err)
	}
	*n = Number{Value: math.Trunc(v), Valid: true}
	return nil
}

// Int returns the reading as an int pointer, nil when absent.
func (n Number) Int() *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Value)
	return &v
}

// NonZero returns the reading as a float pointer, nil when absent or zero.
func (n Number) NonZero() *float64 {
	if !n.Valid || n.Value == 0 {
		return nil
	}
	v := n.Value
	return &v
}
