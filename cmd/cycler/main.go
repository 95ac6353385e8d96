package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/ggonzalez94/cycler/internal/app"
)

func main() {
	// Load .env when present; real environment variables win.
	_ = godotenv.Load()
	os.Exit(app.Execute())
}
