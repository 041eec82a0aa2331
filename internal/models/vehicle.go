package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FlexString decodes either a JSON string or a JSON number into a string.
// The catalog service stores year and price inconsistently.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping the scalar text as written.
func (f *FlexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("flex string: expected scalar, got %s", value.Tag)
	}
	if value.Tag == "!!null" {
		*f = ""
		return nil
	}
	*f = FlexString(value.Value)
	return nil
}

// Float parses the value as a number, accepting "R$ 45.900,00" style input.
func (f FlexString) Float() (float64, bool) {
	s := string(f)
	var digits []byte
	lastSep := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ',' || c == '.':
			digits = append(digits, '.')
			lastSep = len(digits) - 1
		}
	}
	if len(digits) == 0 {
		return 0, false
	}
	// Only the last separator is decimal, and only when followed by 1-2 digits.
	out := make([]byte, 0, len(digits))
	for i, c := range digits {
		if c == '.' {
			if i != lastSep || len(digits)-1-i > 2 {
				continue
			}
		}
		out = append(out, c)
	}
	v, err := strconv.ParseFloat(string(out), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Vehicle is a catalog entry. The catalog service owns its lifecycle.
type Vehicle struct {
	ID          FlexString `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Year        FlexString `json:"year" yaml:"year"`
	Price       FlexString `json:"price" yaml:"price"`
	Description string     `json:"description" yaml:"description"`
	Images      []string   `json:"images" yaml:"images"`
}

func (v *Vehicle) copyPtr() *Vehicle {
	if v == nil {
		return nil
	}
	c := *v
	if v.Images != nil {
		c.Images = append([]string(nil), v.Images...)
	}
	return &c
}
