package mention

import "errors"

var errEmptyName = errors.New("empty display name")
