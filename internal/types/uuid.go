package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex pi_01HZX3Q4J7V8N2M5K6R9T0W1Y2
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

// GenerateUserID returns a new random user id. User ids are plain UUIDs since
// they are shared with the bot and reporting services.
func GenerateUserID() string {
	return uuid.NewString()
}

// IsValidUserID reports whether id is a canonical UUID
func IsValidUserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_PAYMENT_INTENT = "pi"
	UUID_PREFIX_TRANSACTION    = "tx"
)
