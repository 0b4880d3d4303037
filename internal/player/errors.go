package player

import "errors"

var ErrNotFound = errors.New("player not found")
