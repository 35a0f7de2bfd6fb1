package buffer

import "errors"

// ErrSealed is returned by Write once the buffer's filehandle has closed.
var ErrSealed = errors.New("buffer: sealed, no further writes permitted")
