package main

import (
	"os"

	"pkm/backend/pkg/logger"
)

func main() {
	code := 0
	if err := newRootCmd().Execute(); err != nil {
		code = 1
	}
	logger.Sync()
	os.Exit(code)
}
