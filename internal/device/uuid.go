package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	bluetoothBasePrefix = "0000"
	bluetoothBaseSuffix = "00001000800000805f9b34fb"
)

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Surrounding braces and a 0x prefix are stripped, and full 128-bit UUIDs in the Bluetooth SIG base format
// (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to their 16-bit short form.
// Returns "" when the input is not a 16-, 32- or 128-bit UUID.
func NormalizeUUID(s string) string {
	s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), "{}")
	s = strings.ReplaceAll(strings.TrimPrefix(s, "0x"), "-", "")

	switch len(s) {
	case 4, 8:
		if !isHex(s) {
			return ""
		}
		return s
	case 32:
		parsed, err := uuid.Parse(s)
		if err != nil {
			return ""
		}
		hex := strings.ReplaceAll(parsed.String(), "-", "")
		if strings.HasPrefix(hex, bluetoothBasePrefix) && strings.HasSuffix(hex, bluetoothBaseSuffix) {
			return hex[4:8]
		}
		return hex
	default:
		return ""
	}
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, u := range uuids {
		if u == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(u)
		if normalized == "" {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, u)
		}
		result = append(result, normalized)
	}
	return result, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
