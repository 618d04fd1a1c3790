package schema

import (
	_ "embed"
)

//go:embed operation.schema.json
var operationSchema []byte

//go:embed room.schema.json
var roomSchema []byte

// NewOperationValidator validates inbound edit operations.
func NewOperationValidator() *Validator {
	return mustValidator(operationSchema)
}

// NewRoomValidator validates persisted room records.
func NewRoomValidator() *Validator {
	return mustValidator(roomSchema)
}

func mustValidator(data []byte) *Validator {
	v, err := NewValidator(data)
	if err != nil {
		panic(err)
	}
	return v
}
