// Package phone validates and canonicalizes free-form phone numbers into the
// digit-only, country-prefixed identifiers used by the SMS and chat channels.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone is matched by every validation failure returned from Normalize.
var ErrInvalidPhone = errors.New("invalid phone")

// InvalidPhoneError describes why a raw contact string was rejected.
type InvalidPhoneError struct {
	Input  string
	Reason string
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone %q: %s", e.Input, e.Reason)
}

func (e *InvalidPhoneError) Is(target error) bool {
	return target == ErrInvalidPhone
}

// Plan describes a national numbering plan.
type Plan struct {
	Name          string
	CountryCode   string
	AreaCodeLen   int
	LandlineLen   int
	MobileLen     int
	MobilePrefix  byte
	ValidAreaCode func(code string) bool
}

// Brazil is the Brazilian numbering plan: country 55, two-digit DDD area codes,
// eight-digit landlines and nine-digit mobiles starting with 9.
var Brazil = Plan{
	Name:          "BR",
	CountryCode:   "55",
	AreaCodeLen:   2,
	LandlineLen:   8,
	MobileLen:     9,
	MobilePrefix:  '9',
	ValidAreaCode: brazilAreaCode,
}

// brazilDDD lists the area codes assigned by ANATEL.
var brazilDDD = map[string]bool{
	"11": true, "12": true, "13": true, "14": true, "15": true, "16": true, "17": true, "18": true, "19": true,
	"21": true, "22": true, "24": true, "27": true, "28": true,
	"31": true, "32": true, "33": true, "34": true, "35": true, "37": true, "38": true,
	"41": true, "42": true, "43": true, "44": true, "45": true, "46": true, "47": true, "48": true, "49": true,
	"51": true, "53": true, "54": true, "55": true,
	"61": true, "62": true, "63": true, "64": true, "65": true, "66": true, "67": true, "68": true, "69": true,
	"71": true, "73": true, "74": true, "75": true, "77": true, "79": true,
	"81": true, "82": true, "83": true, "84": true, "85": true, "86": true, "87": true, "88": true, "89": true,
	"91": true, "92": true, "93": true, "94": true, "95": true, "96": true, "97": true, "98": true, "99": true,
}

func brazilAreaCode(code string) bool {
	return brazilDDD[code]
}

// PlanFor returns the plan registered under a country name.
func PlanFor(country string) (Plan, bool) {
	switch strings.ToUpper(country) {
	case "", "BR", "BRAZIL":
		return Brazil, true
	}
	return Plan{}, false
}

// Normalize strips formatting from raw and returns the canonical digit-only number
// with country code, e.g. "(11) 98765-4321" -> "5511987654321".
// It is pure and deterministic; Normalize(Normalize(x)) == Normalize(x).
func (p Plan) Normalize(raw string) (string, error) {
	digits := strings.TrimLeft(digitsOnly(raw), "0")
	if digits == "" {
		return "", p.invalid(raw, "no digits")
	}

	local := p.AreaCodeLen + p.LandlineLen
	localMobile := p.AreaCodeLen + p.MobileLen
	cc := len(p.CountryCode)

	var full string
	switch n := len(digits); {
	case strings.HasPrefix(digits, p.CountryCode) && (n == cc+local || n == cc+localMobile):
		full = digits
	case n == local || n == localMobile:
		full = p.CountryCode + digits
	case n == p.LandlineLen || n == p.MobileLen:
		return "", p.invalid(raw, "missing area code")
	case strings.HasPrefix(digits, p.CountryCode):
		return "", p.invalid(raw, fmt.Sprintf("%d digits after country code %s, want %d or %d", n-cc, p.CountryCode, local, localMobile))
	default:
		return "", p.invalid(raw, fmt.Sprintf("unexpected length %d", n))
	}

	if err := p.validate(raw, full); err != nil {
		return "", err
	}
	return full, nil
}

// E164 returns the normalized number with a leading "+".
func (p Plan) E164(raw string) (string, error) {
	n, err := p.Normalize(raw)
	if err != nil {
		return "", err
	}
	return "+" + n, nil
}

// AreaCode returns the area code of an already normalized number.
func (p Plan) AreaCode(normalized string) string {
	start := len(p.CountryCode)
	if len(normalized) < start+p.AreaCodeLen {
		return ""
	}
	return normalized[start : start+p.AreaCodeLen]
}

func (p Plan) validate(raw, full string) error {
	area := p.AreaCode(full)
	if p.ValidAreaCode != nil && !p.ValidAreaCode(area) {
		return p.invalid(raw, fmt.Sprintf("unknown area code %s", area))
	}

	subscriber := full[len(p.CountryCode)+p.AreaCodeLen:]
	switch len(subscriber) {
	case p.MobileLen:
		if p.MobilePrefix != 0 && subscriber[0] != p.MobilePrefix {
			return p.invalid(raw, fmt.Sprintf("mobile number must start with %c", p.MobilePrefix))
		}
	case p.LandlineLen:
	default:
		return p.invalid(raw, fmt.Sprintf("subscriber number has %d digits", len(subscriber)))
	}
	return nil
}

func (p Plan) invalid(raw, reason string) error {
	return &InvalidPhoneError{Input: raw, Reason: reason}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
