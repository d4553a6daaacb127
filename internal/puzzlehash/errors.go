package puzzlehash

import "errors"

var errInvalidHashEncoding = errors.New("puzzlehash: expected 64 lowercase hex characters (32 bytes)")
