// Package main generates the signing secrets the backend needs into a .env
// file, leaving existing values untouched.
package main

import (
	"flag"
	"fmt"

	"github.com/automataweaver/backend/internal/platform/config"
	"github.com/automataweaver/backend/internal/tools/envsecrets"
)

func main() {
	path := flag.String("env-file", ".env", "env file to write generated secrets to")
	flag.Parse()

	generated, err := envsecrets.Generate(*path, nil)
	if err != nil {
		config.Exitf("generate secrets: %v", err)
	}
	if len(generated) == 0 {
		fmt.Println("all secrets already present")
		return
	}
	for _, key := range generated {
		fmt.Printf("generated %s\n", key)
	}
}
