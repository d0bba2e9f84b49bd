package service

import (
	"fmt"
	"strings"
)

// NameOrder controls how display names are composed from name parts.
type NameOrder string

const (
	GivenFirst   NameOrder = "given_first"
	SurnameFirst NameOrder = "surname_first"
)

// DefaultNameOrder is used when no order is configured.
const DefaultNameOrder = GivenFirst

// ParseNameOrder accepts the configured spelling of a NameOrder.
// An empty value selects DefaultNameOrder.
func ParseNameOrder(s string) (NameOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultNameOrder, nil
	case "given_first", "given-first", "firstname_lastname":
		return GivenFirst, nil
	case "surname_first", "surname-first", "lastname_firstname":
		return SurnameFirst, nil
	default:
		return "", fmt.Errorf("unknown display name order %q (want given_first or surname_first)", s)
	}
}

// ComposeDisplayName joins the non-empty name parts in the given order.
func ComposeDisplayName(given, surname string, order NameOrder) string {
	given = strings.TrimSpace(given)
	surname = strings.TrimSpace(surname)

	switch {
	case given == "":
		return surname
	case surname == "":
		return given
	case order == SurnameFirst:
		return surname + " " + given
	default:
		return given + " " + surname
	}
}
