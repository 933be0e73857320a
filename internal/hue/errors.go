package hue

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownResource means an id or name does not exist on the bridge.
	ErrUnknownResource = errors.New("hue: unknown resource")

	// ErrAmbiguousResource means a name matched several resources under the strict
	// policy, or an operation that needs one resource was given several.
	ErrAmbiguousResource = errors.New("hue: ambiguous resource")

	// ErrUnknownAttribute means an attribute is not recognised for the resource kind.
	ErrUnknownAttribute = errors.New("hue: unknown attribute")

	// ErrBridgeRejected means the bridge refused a command for a resource.
	ErrBridgeRejected = errors.New("hue: bridge rejected command")
)

// Bridge error types that get a category of their own.
const (
	ErrorTypeUnauthorized         = 1
	ErrorTypeResourceNotAvailable = 3
)

// BridgeError is one error entry of a bridge reply:
//
//	[{"error":{"type":7,"address":"/lights/1/state/bri","description":"invalid value"}}]
//
// A "resource not available" error matches ErrUnknownResource, every other type
// matches ErrBridgeRejected.
type BridgeError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("hue: bridge error %d at %s: %s", e.Type, e.Address, e.Description)
}

// Is maps the error type onto the sentinel categories.
func (e *BridgeError) Is(target error) bool {
	if e.Type == ErrorTypeResourceNotAvailable {
		return target == ErrUnknownResource
	}
	return target == ErrBridgeRejected
}

// IsUnknownResource reports whether err means the resource does not exist.
func IsUnknownResource(err error) bool {
	return errors.Is(err, ErrUnknownResource)
}

// IsRejected reports whether the bridge refused the command.
func IsRejected(err error) bool {
	return errors.Is(err, ErrBridgeRejected)
}
