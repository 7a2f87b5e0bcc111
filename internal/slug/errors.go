package slug

import "errors"

var errNotAbsolute = errors.New("not an absolute URL")
