package main

import (
	"fmt"
	"os"

	"github.com/kapicorp/webhook-relay/config"
	"github.com/kapicorp/webhook-relay/sources"
)

/* validate-config - Standalone CLI tool to validate a relay configuration
 * Usage: go run cmd/validate-config/main.go [config.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	configFile := "config.yaml"
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	fmt.Printf("Validating config file: %s\n\n", configFile)

	cfg, err := config.Load(configFile)
	if err != nil {
		fail(err)
	}

	loader, err := sources.NewLoader(cfg.Collector.Sources)
	if err != nil {
		fail(err)
	}

	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Queue backend: %s\n", cfg.Queue.Type)
	fmt.Printf("Loaded %d source(s):\n", len(loader.List()))

	for i, src := range loader.List() {
		fmt.Printf("\n%d. Source: %s\n", i+1, src.Name)
		fmt.Printf("   Scheme:           %s\n", src.Scheme)
		if src.Scheme != sources.None {
			fmt.Printf("   Signature Header: %s\n", src.SignatureHeader)
		}
		if len(src.ForwardHeaders) > 0 {
			fmt.Printf("   Forward Headers:  %v\n", src.ForwardHeaders)
		}
	}

	if cfg.Forwarder.TargetURL != "" {
		fmt.Printf("\nForwarder target: %s\n", cfg.Forwarder.TargetURL)
		fmt.Printf("   Retry Attempts: %d\n", cfg.Forwarder.RetryAttempts)
		fmt.Printf("   Retry Delay:    %s\n", cfg.Forwarder.RetryDelay)
		fmt.Printf("   Timeout:        %s\n", cfg.Forwarder.Timeout)
	}

	fmt.Printf("\n✓ Configuration is valid!\n")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
