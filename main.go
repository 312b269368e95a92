package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/spigell/auto-apply/cmd"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
