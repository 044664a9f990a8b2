// Package compat holds the wire shims for data the store has emitted in
// more than one shape. Nothing here belongs in the domain model.
//
// Known shim: booking addresses arrive either as a structured object or,
// from older ordering flows, as a single free-text line. The free-text
// form is kept verbatim in Street.
package compat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/courierbooking/internal/domain"
)

// Address decodes either representation into a domain.Address and always
// encodes the structured one.
type Address domain.Address

func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Address{}
		return nil
	}
	if data[0] == '"' {
		var line string
		if err := json.Unmarshal(data, &line); err != nil {
			return fmt.Errorf("decode address line: %w", err)
		}
		*a = Address{Street: line}
		return nil
	}
	var structured domain.Address
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	*a = Address(structured)
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(domain.Address(a))
}

// DecodeAddress is the []byte form used when scanning JSONB columns.
func DecodeAddress(raw []byte) (domain.Address, error) {
	var a Address
	if err := a.UnmarshalJSON(raw); err != nil {
		return domain.Address{}, err
	}
	return domain.Address(a), nil
}
