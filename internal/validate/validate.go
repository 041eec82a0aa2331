// Package validate holds the predicates applied to each expected answer shape.
//
// Every validator takes the raw customer text, trims it, and returns a bool.
// None of them panic or return errors; prompting on failure is the caller's job.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	amountRe       = regexp.MustCompile(`^\d+([.,]\d{1,2})?$`)
	installmentsRe = regexp.MustCompile(`^\d+$`)
	cpfRe          = regexp.MustCompile(`^\d{11}$`)
	dateRe         = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	timeRe         = regexp.MustCompile(`^(\d{2}):(\d{2})$`)
	yearRe         = regexp.MustCompile(`^\d{4}$`)
	modelRe        = regexp.MustCompile(`^[\p{L}\p{N} ]+$`)
)

// MinVehicleYear is the oldest accepted vehicle model year.
const MinVehicleYear = 1900

// Now is the clock used by VehicleYear. Tests replace it.
var Now = time.Now

// stripCurrency removes a leading "R$" marker customers tend to type.
func stripCurrency(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "r$")
	return strings.TrimSpace(s)
}

// Amount accepts an integer or a decimal with up to two fractional digits,
// using either ',' or '.' as the decimal separator.
func Amount(s string) bool {
	return amountRe.MatchString(stripCurrency(s))
}

// ParseAmount returns the numeric value of a valid amount.
func ParseAmount(s string) (float64, bool) {
	s = stripCurrency(s)
	if !amountRe.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Installments accepts a positive integer.
func Installments(s string) bool {
	s = strings.TrimSpace(s)
	if !installmentsRe.MatchString(s) {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n > 0
}

// CPF accepts exactly eleven decimal digits with no separators.
func CPF(s string) bool {
	return cpfRe.MatchString(strings.TrimSpace(s))
}

// Date accepts dd/mm/yyyy naming a real calendar day.
func Date(s string) bool {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	d, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	y, _ := strconv.Atoi(m[3])
	if mo < 1 || mo > 12 || d < 1 {
		return false
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d && int(t.Month()) == mo
}

// LooseDate accepts a strict date or free alphabetic text such as "amanhã" or
// "sexta feira". It is only used for visit scheduling.
func LooseDate(s string) bool {
	s = strings.TrimSpace(s)
	if Date(s) {
		return true
	}
	letters := 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return letters > 0
}

// VisitTime accepts HH:MM with two-digit groups inside a 24h clock.
func VisitTime(s string) bool {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	return h < 24 && mi < 60
}

// FullName accepts at least two whitespace-separated alphabetic tokens.
func FullName(s string) bool {
	tokens := strings.Fields(s)
	if len(tokens) < 2 {
		return false
	}
	for _, tok := range tokens {
		for _, r := range tok {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}

// VehicleModel accepts letters, digits and spaces, non-empty.
func VehicleModel(s string) bool {
	return modelRe.MatchString(strings.TrimSpace(s))
}

// VehicleYear accepts four digits within [MinVehicleYear, current year + 1].
func VehicleYear(s string) bool {
	s = strings.TrimSpace(s)
	if !yearRe.MatchString(s) {
		return false
	}
	y, _ := strconv.Atoi(s)
	return y >= MinVehicleYear && y <= Now().Year()+1
}

// Condition accepts any non-blank text.
func Condition(s string) bool {
	return strings.TrimSpace(s) != ""
}

// SplitVehicleDescriptor extracts "model year condition" from one answer,
// e.g. "Gol G5 2018 bom estado" -> ("Gol G5", "2018", "bom estado").
// The first token that is a valid vehicle year splits model from condition.
func SplitVehicleDescriptor(s string) (model, year, condition string, ok bool) {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if !VehicleYear(tok) {
			continue
		}
		model = strings.Join(tokens[:i], " ")
		condition = strings.Join(tokens[i+1:], " ")
		if !VehicleModel(model) || !Condition(condition) {
			return "", "", "", false
		}
		return model, tok, condition, true
	}
	return "", "", "", false
}
