package main

import (
	"log"

	"pickandplay/internal/devserver"
)

func main() {
	if err := devserver.Run(); err != nil {
		log.Fatalf("shop devserver failed: %v", err)
	}
}
