package main

import (
	"github.com/joho/godotenv"

	"github.com/msoriano-dev/updown-cycle-bot/cmd"
)

func main() {
	// Missing .env is fine; config falls back to process environment.
	_ = godotenv.Load()

	cmd.Execute()
}
