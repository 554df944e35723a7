package main

import (
	"context"
	"log"
	"os"

	"github.com/pilab-dev/frigg/cmd/friggctl/cmd"
	"github.com/pilab-dev/frigg/tracing"
)

func main() {
	tp, err := tracing.InitTracerProviderWithWriter("frigg-friggctl", os.Stderr)
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
