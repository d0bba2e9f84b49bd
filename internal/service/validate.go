package service

import (
	"regexp"
	"unicode/utf8"
)

var (
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	newSAMPattern    = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
	telephonePattern = regexp.MustCompile(`^[\d\s\-+()]+$`)
	emailPattern     = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
)

// minPasswordLength is the shortest password accepted for new accounts.
const minPasswordLength = 8

// ValidateUsername checks a lookup key. Empty is rejected.
func ValidateUsername(username string) error {
	if username == "" {
		return invalid("username", "must not be empty")
	}
	if !usernamePattern.MatchString(username) {
		return invalid("username", "may only contain letters, digits, '.', '_' and '-'")
	}
	return nil
}

// ValidateTelephone checks a phone number. Empty means "clear" and passes.
func ValidateTelephone(phone string) error {
	if phone != "" && !telephonePattern.MatchString(phone) {
		return invalid("telephone number", "may only contain digits, spaces and + - ( )")
	}
	return nil
}

// ValidateEmail checks an e-mail address. Empty means "clear" and passes.
func ValidateEmail(email string) error {
	if email != "" && !emailPattern.MatchString(email) {
		return invalid("e-mail", "must look like name@domain.tld")
	}
	return nil
}

func validateNewSAMAccountName(sam string) error {
	if sam == "" {
		return invalid("username", "is required")
	}
	if !newSAMPattern.MatchString(sam) {
		return invalid("username", "may only contain letters, digits, '_' and '-'")
	}
	return nil
}

func validateNewPassword(password, confirmation string) error {
	switch {
	case password == "":
		return invalid("password", "is required")
	case password != confirmation:
		return invalid("password", "confirmation does not match")
	case utf8.RuneCountInString(password) < minPasswordLength:
		return invalid("password", "must be at least 8 characters")
	}
	return nil
}
