package main

import (
	"visitor-access-control/cmd"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env before anything reads the environment
	godotenv.Load()

	cmd.Execute()
}
