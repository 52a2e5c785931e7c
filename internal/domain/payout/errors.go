package payout

import "errors"

var ErrInvalidProofImage = errors.New("proof image could not be decoded")
