package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ValidateAddress checks that s is a well-formed account address. Mixed-case
// input must carry a valid EIP-55 checksum; all-lower and all-upper hex are
// accepted without one.
func ValidateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if "0x"+body != ToChecksumAddress(body) {
		return fmt.Errorf("%w: bad checksum %q", ErrInvalidAddress, s)
	}
	return nil
}

// ToChecksumAddress implements EIP-55 mixed-case checksum encoding.
func ToChecksumAddress(addr string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hash := hex.EncodeToString(h.Sum(nil))

	var sb strings.Builder
	sb.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			sb.WriteRune(c - 32)
		} else {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// NormalizeAddress returns addr as lower-case hex with a 0x prefix. It does
// not validate.
func NormalizeAddress(addr string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X"))
}
