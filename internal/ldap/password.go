package ldap

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// EncodePassword returns the unicodePwd value for password: the password in
// double quotes, encoded as UTF-16LE without a byte order mark.
func EncodePassword(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}

	return encoded, nil
}
