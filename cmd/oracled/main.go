package main

import (
	"log"

	oracled "github.com/subclone/pcidss-oracle/services/oracled"
)

func main() {
	if err := oracled.Main(); err != nil {
		log.Fatalf("oracled: %v", err)
	}
}
