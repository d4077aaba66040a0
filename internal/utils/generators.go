package utils

import (
	"fmt"

	"github.com/google/uuid"
)

func GenerateUUID() string {
	return uuid.NewString()
}

func GenerateOrderID() string {
	return fmt.Sprintf("ord_%s", uuid.NewString())
}

func GeneratePaymentID() string {
	return fmt.Sprintf("pay_%s", uuid.NewString())
}

func GenerateRegistrationID() string {
	return fmt.Sprintf("reg_%s", uuid.NewString())
}
