package referral

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

var codec = base32.StdEncoding.WithPadding(base32.NoPadding)

// Code derives the referral code for an account. It is deterministic and
// stable: the same account always gets the same code, and one code can be
// used by any number of signups.
func Code(accountID uuid.UUID) string {
	return strings.ToLower(codec.EncodeToString(accountID[:]))
}

// ParseCode recovers the referrer account id from a code.
func ParseCode(code string) (uuid.UUID, error) {
	raw, err := codec.DecodeString(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return uuid.Nil, ErrInvalidCode
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidCode
	}
	return id, nil
}
