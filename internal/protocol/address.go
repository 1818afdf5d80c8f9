package protocol

import (
	"errors"
	"net"
	"strings"
)

// MaxReplicas bounds the address list, mirroring the compile-time replica
// cap spec.md §4.7 calls for.
const MaxReplicas = 6

// ErrAddressInvalid indicates a malformed address in the list.
var ErrAddressInvalid = errors.New("protocol: address_invalid")

// ErrAddressLimitExceeded indicates more than MaxReplicas addresses were given.
var ErrAddressLimitExceeded = errors.New("protocol: address_limit_exceeded")

// ParseAddresses splits a comma- or space-separated host:port list,
// validating each entry and the replica cap.
func ParseAddresses(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil, ErrAddressInvalid
	}
	if len(fields) > MaxReplicas {
		return nil, ErrAddressLimitExceeded
	}
	addrs := make([]string, 0, len(fields))
	for _, f := range fields {
		host, port, err := net.SplitHostPort(f)
		if err != nil || host == "" || port == "" {
			return nil, ErrAddressInvalid
		}
		addrs = append(addrs, f)
	}
	return addrs, nil
}
