package topup

import "errors"

var (
	ErrInvalidProofImage = errors.New("proof image could not be decoded")
	ErrNoProof           = errors.New("transaction has no proof attached")
)
