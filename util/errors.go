package util

import (
	"errors"
	"fmt"
)

// PanicToError turns a recovered panic value into an error.
func PanicToError(recovered interface{}) error {
	switch x := recovered.(type) {
	case nil:
		return nil
	case error:
		return x
	case string:
		return errors.New(x)
	default:
		return fmt.Errorf("panic: %v", x)
	}
}
