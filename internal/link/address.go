package link

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Address is the 64-bit hardware address of a radio, e.g. 0013A200419B5208
type Address uint64

// ParseAddress parses 16 hex digits, optionally prefixed with 0x
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")

	if len(s) != 16 {
		return 0, NewConfigError(fmt.Sprintf("link: address '%s'", s), ErrInvalidAddress)
	}

	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, NewConfigError(fmt.Sprintf("link: address '%s'", s), ErrInvalidAddress)
	}

	return Address(v), nil
}

// Bytes returns the address in big-endian byte order, as sent over the air
func (a Address) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(a))
	return b
}

func (a Address) String() string {
	return fmt.Sprintf("%016X", uint64(a))
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	v, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = v
	return nil
}
