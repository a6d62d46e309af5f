package repositories

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// flexFloat accepts numbers, numeric strings and empty values.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "", "null", "-", "-99", "-99.0":
		*f = flexFloat{}
		return nil
	case "ip":
		// "inapreciable": a trace amount
		*f = flexFloat{Value: 0.1, Valid: true}
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		*f = flexFloat{}
		return nil
	}
	*f = flexFloat{Value: v, Valid: true}
	return nil
}

func (f flexFloat) Or(def float64) float64 {
	if f.Valid {
		return f.Value
	}
	return def
}

// flexString accepts strings and bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	*f = flexString(s)
	return nil
}

// toUTF8 re-encodes ISO-8859-15 payloads. Valid UTF-8 passes through unchanged.
func toUTF8(b []byte) []byte {
	if utf8.Valid(b) {
		return b
	}
	out, err := charmap.ISO8859_15.NewDecoder().Bytes(b)
	if err != nil {
		return b
	}
	return out
}
