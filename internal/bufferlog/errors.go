package bufferlog

import "errors"

// ErrClosed is returned by Append once the log's filehandle has been closed.
var ErrClosed = errors.New("bufferlog: filehandle closed")
