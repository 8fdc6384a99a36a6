package vm

import (
	"strconv"

	"github.com/chazu/minic/pkg/value"
)

// guardian centralizes the runtime safety checks the VM's opcode
// handlers must perform before touching a value: initialization,
// numeric/boolean typing, heap address validity, and array bounds. It
// holds no state of its own — every check is a pure function of its
// arguments — but is kept as a named component so the VM's dispatch
// loop reads as "check, then act" rather than inline condition soup.
//
// Conditions and the `!` operator require a genuine Boolean value: this
// language has no truthy/falsy coercion from int or pointer, so
// checkBoolean rejects anything but value.Bool outright.
type guardian struct{}

func (guardian) checkInitialized(v value.Value) error {
	if v.Kind == value.Uninitialized {
		return &RuntimeError{Message: "use of uninitialized value"}
	}
	return nil
}

func (g guardian) checkNumeric(v value.Value) error {
	if err := g.checkInitialized(v); err != nil {
		return err
	}
	if !v.IsNumeric() {
		return &RuntimeError{Message: "numeric operand required"}
	}
	return nil
}

func (g guardian) checkBoolean(v value.Value) error {
	if err := g.checkInitialized(v); err != nil {
		return err
	}
	if v.Kind != value.Bool {
		return &RuntimeError{Message: "boolean required"}
	}
	return nil
}

func (guardian) checkPointer(v value.Value) error {
	if v.Kind != value.Ptr {
		return &RuntimeError{Message: "operand must be pointer"}
	}
	return nil
}

func (guardian) checkHeapAddress(addr, count int) error {
	if addr < 0 || addr >= count {
		return &RuntimeError{Message: "invalid heap address"}
	}
	return nil
}

func (guardian) checkArrayBounds(length, i int) error {
	if i < 0 || i >= length {
		return &RuntimeError{Message: indexOutOfRangeMessage(i, length)}
	}
	return nil
}

func indexOutOfRangeMessage(i, length int) string {
	if length == 0 {
		return "index out of bounds: array has length 0"
	}
	return "index " + strconv.Itoa(i) + " is out of range [0, " + strconv.Itoa(length-1) + "]"
}

// checkIndexInt requires v to be an initialized integer, used for both
// array sizes and subscript indices; context names which one, so the
// error reads "array size must be integer" or "array index must be
// integer" rather than a generic message.
func (g guardian) checkIndexInt(v value.Value, context string) (int, error) {
	if err := g.checkInitialized(v); err != nil {
		return 0, err
	}
	if v.Kind != value.Int {
		return 0, &RuntimeError{Message: context + " must be integer"}
	}
	return int(v.IntVal), nil
}
