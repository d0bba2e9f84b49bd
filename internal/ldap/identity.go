package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID.
const GUIDBytesLength = 16

// GUIDFromBytes converts a binary objectGUID to its canonical string.
// Active Directory stores the first three GUID fields little-endian.
func GUIDFromBytes(b []byte) (string, error) {
	if len(b) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(b))
	}

	swapped := make([]byte, GUIDBytesLength)
	copy(swapped, b)
	swapped[0], swapped[1], swapped[2], swapped[3] = b[3], b[2], b[1], b[0]
	swapped[4], swapped[5] = b[5], b[4]
	swapped[6], swapped[7] = b[7], b[6]

	id, err := uuid.FromBytes(swapped)
	if err != nil {
		return "", fmt.Errorf("failed to decode GUID: %w", err)
	}
	return id.String(), nil
}

// GUIDToBytes is the inverse of GUIDFromBytes.
func GUIDToBytes(guid string) ([]byte, error) {
	id, err := uuid.Parse(strings.TrimSpace(guid))
	if err != nil {
		return nil, fmt.Errorf("invalid GUID format: %s", guid)
	}

	b := id[:]
	return []byte{
		b[3], b[2], b[1], b[0],
		b[5], b[4],
		b[7], b[6],
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15],
	}, nil
}

// SIDFromBytes converts a binary objectSid to S-1-... form.
func SIDFromBytes(b []byte) (string, error) {
	if !isBinarySID(b) {
		return "", fmt.Errorf("invalid binary SID of %d bytes", len(b))
	}
	return objectsid.Decode(b).String(), nil
}

// isBinarySID checks the revision byte and that the length matches the sub-authority count.
func isBinarySID(b []byte) bool {
	return len(b) >= 8 && b[0] == 1 && len(b) == 8+4*int(b[1])
}

// extractGUID reads objectGUID from entry. String values are accepted for fixtures.
func extractGUID(entry *ldap.Entry) string {
	if raw := entry.GetRawAttributeValue("objectGUID"); len(raw) == GUIDBytesLength {
		if guid, err := GUIDFromBytes(raw); err == nil {
			return guid
		}
	}

	if s := entry.GetAttributeValue("objectGUID"); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			return id.String()
		}
	}

	return ""
}

// extractSID reads objectSid from entry. String values are accepted for fixtures.
func extractSID(entry *ldap.Entry) string {
	if raw := entry.GetRawAttributeValue("objectSid"); isBinarySID(raw) {
		if sid, err := SIDFromBytes(raw); err == nil {
			return sid
		}
	}

	if s := entry.GetAttributeValue("objectSid"); strings.HasPrefix(s, "S-1-") {
		return s
	}

	return ""
}
