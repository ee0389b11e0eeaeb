package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/ideaforge-dev/ideaforge/cmd/ideaforge/cmd"
)

// Version information (set via ldflags)
var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	// Absent .env files are fine; real deployments use the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	cmd.SetVersion(Version, Commit)
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
