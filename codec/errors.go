package codec

import "fmt"

// CodecError is returned for malformed tick/candle CSV, bad directions, or
// unparseable numbers. It wraps the underlying parse error when there is
// one.
type CodecError struct {
	Input string
	Err   error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: invalid input %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("codec: invalid input %q", e.Input)
}

func (e *CodecError) Unwrap() error { return e.Err }

func fail(input string, err error) *CodecError {
	return &CodecError{Input: input, Err: err}
}
