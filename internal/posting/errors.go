package posting

import "errors"

var errShortRecord = errors.New("posting: truncated record")
