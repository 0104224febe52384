// Command x509constraints checks certificates against the name constraints
// of their issuers.
//
// Usage:
//
//	x509constraints <command> [options] <args>
//
// Commands:
//
//	check    Check a certificate against the name constraints of its issuers
//	inspect  Show the extensions of a certificate and lint warnings
//	match    Check whether a certificate is valid for a host name or IP address
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Check a leaf against its CA bundle
//	x509constraints check ca.pem leaf.pem
//
//	# Apply an extra policy and print JSON
//	x509constraints check -config policy.yaml -json ca.pem leaf.pem
//
//	# Verify a host name
//	x509constraints match leaf.pem www.example.com
package main

import (
	"os"

	"github.com/georgepadayatti/x509constraints/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/x509constraints
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
