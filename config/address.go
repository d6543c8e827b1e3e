package config

import (
	"errors"
	"strings"

	"github.com/maoxs2/go-bech32"
)

// ParsedAddress is the result of validating a `address.worker` login name
// per spec §4.F authorize.
type ParsedAddress struct {
	Address string
	Worker  string
}

var (
	ErrEmptyWorkerName  = errors.New("empty worker name")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrMissingAddrColon = errors.New("login missing prefix separator")
)

// ParseLogin splits "address.worker" and validates both halves.
func ParseLogin(login string) (*ParsedAddress, error) {
	parts := strings.SplitN(login, ".", 2)
	address := parts[0]
	worker := ""
	if len(parts) == 2 {
		worker = parts[1]
	}

	if worker == "" {
		return nil, ErrEmptyWorkerName
	}

	if err := ValidateAddress(address); err != nil {
		return nil, err
	}

	return &ParsedAddress{Address: address, Worker: worker}, nil
}

// ValidateAddress checks that addr is a well-formed "<prefix>:<payload>"
// bech32 Kaspa-style address.
func ValidateAddress(addr string) error {
	colon := strings.IndexByte(addr, ':')
	if colon <= 0 || colon == len(addr)-1 {
		return ErrMissingAddrColon
	}

	_, _, err := bech32.Decode(addr[colon+1:])
	if err != nil {
		return ErrInvalidAddress
	}

	return nil
}
