package presence

import "errors"

var errConnectionCycled = errors.New("connection cycled by new connection")
