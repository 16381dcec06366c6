package hash

import "fmt"

/*
ConfigurationError is returned when an Index is opened with Options that
cannot be honored, such as reopening a checkpoint with a different
MaxLevelDepth than it was written with.
*/
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hash: configuration error: %s", e.Reason)
}

/*
IndexError wraps a lower-level failure (page cache, codec, state store)
encountered while servicing an index operation, preserving it via Unwrap
so callers can errors.Is/errors.As through to the original cause.
*/
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("hash: %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}

/*
KeyTooLargeError is returned by Insert when a key/value pair cannot fit
in an empty bucket page and Options.DropOversizedKeys is false.
*/
type KeyTooLargeError struct {
	KeySize, ValueSize, PageSize int
}

func (e *KeyTooLargeError) Error() string {
	return fmt.Sprintf("hash: key (%d bytes) + value (%d bytes) cannot fit in a %d byte page even alone",
		e.KeySize, e.ValueSize, e.PageSize)
}

/*
CorruptionError reports an on-disk or in-memory invariant violation
detected while resolving a key or reading a page - a directory depth
that overruns the hash width, a walk that reaches a tombstoned directory
node, or a bucket page or state file whose contents cannot be parsed.
*/
type CorruptionError struct {
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("hash: corruption detected: %s", e.Detail)
}
