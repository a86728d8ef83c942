package main

import (
	"log"

	"github.com/joho/godotenv"

	"webdoc/internal/app"
)

func main() {
	// Optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
