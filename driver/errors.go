package driver

import "fmt"

// AddressFormatError reports malformed address text or bytes, or a wire
// address whose kind does not match the expected family.
type AddressFormatError struct {
	Kind   AddressKind
	Input  string
	Reason string
}

func (e *AddressFormatError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("bad %s address: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("bad %s address %q: %s", e.Kind, e.Input, e.Reason)
}
