// Command mfa-server serves the goMFA HTTP API.
//
// It resolves members from a trusted header set by an upstream login proxy
// and keeps MFA flows in Redis-backed host sessions keyed by a signed
// cookie.
//
// Run with an in-process Redis and in-memory records:
//
//	go run ./cmd/mfa-server serve --dev
//
// Then:
//
//	curl -i -c jar.txt -H 'X-Member-ID: alice' localhost:8080/mfa/register/basic-math
//	curl -i -b jar.txt -H 'X-Member-ID: alice' -X POST localhost:8080/mfa/register/basic-math \
//	  -d '{"number": 12}'
//
// List the methods the binary can enable:
//
//	go run ./cmd/mfa-server methods
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
