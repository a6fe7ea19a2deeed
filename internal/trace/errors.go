package trace

import "fmt"

// MissingFieldError reports a required key that is absent from a node.
type MissingFieldError struct {
	Path  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("invalid trace: %s: missing field %q", e.Path, e.Field)
}

// WrongTypeError reports a required key whose value has the wrong JSON shape.
type WrongTypeError struct {
	Path     string
	Field    string
	Expected string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("invalid trace: %s: field %q is not %s", e.Path, e.Field, e.Expected)
}

// NotAnObjectError reports a node that is not a JSON object.
type NotAnObjectError struct {
	Context string
}

func (e *NotAnObjectError) Error() string {
	return fmt.Sprintf("invalid trace: %s is not an object", e.Context)
}

// TooDeepError reports a trace nested deeper than the parser accepts.
type TooDeepError struct {
	Path  string
	Limit int
}

func (e *TooDeepError) Error() string {
	return fmt.Sprintf("invalid trace: %s nests deeper than %d levels", e.Path, e.Limit)
}
