package service

import "github.com/google/uuid"

// UUIDGenerator issues random (v4) transaction ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
