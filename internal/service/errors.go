// Package service holds the orchestrators that keep ticket inventory
// consistent: sale, bulk sale, refund and check-in.
package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidArgument is returned, before any store is touched, for input
// that fails validation.  Handlers translate it into HTTP 400.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool { return emailRe.MatchString(s) }

// normalizeBuyer trims the name and email.  A blank email becomes nil.
func normalizeBuyer(name string, email *string) (string, *string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, invalid("buyer_name is required")
	}
	if email == nil {
		return name, nil, nil
	}
	e := strings.TrimSpace(*email)
	if e == "" {
		return name, nil, nil
	}
	if !ValidEmail(e) {
		return "", nil, invalid("buyer_email %q is not a valid email", e)
	}
	return name, &e, nil
}

func checkPrice(p *decimal.Decimal) error {
	if p != nil && p.IsNegative() {
		return invalid("price must not be negative")
	}
	return nil
}
