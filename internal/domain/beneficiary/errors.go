package beneficiary

import "errors"

var ErrNotFound = errors.New("beneficiary not found")
