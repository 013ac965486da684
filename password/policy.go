package password

import (
	"strconv"
	"unicode"
)

// Policy is the strength rule set applied on registration, reset and change.
type Policy struct {
	MinLength     int
	RequireLower  bool
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires at least 8 characters with a lowercase letter, an
// uppercase letter, a digit and a symbol. Underscore counts as a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireLower:  true,
		RequireUpper:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check returns one message per failed rule, or nil when password passes.
func (p Policy) Check(password string) []string {
	var lower, upper, digit, symbol bool
	n := 0
	for _, r := range password {
		n++
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case r == '_' || !(unicode.IsLetter(r) || unicode.IsNumber(r)):
			symbol = true
		}
	}

	var problems []string
	if n < p.MinLength {
		problems = append(problems, "must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.RequireLower && !lower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if p.RequireUpper && !upper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if p.RequireDigit && !digit {
		problems = append(problems, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		problems = append(problems, "must contain a symbol")
	}
	return problems
}
