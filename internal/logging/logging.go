package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger. Development gets the human-readable
// console encoder; everything else logs structured JSON.
func New(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
