// Package cli provides the command-line interface for checking X.509 name
// constraints and inspecting certificate extensions.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// stdout and stderr are variables to allow testing
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "check":
		CheckCommand(args)
	case "inspect":
		InspectCommand(args)
	case "match":
		MatchCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Fprintf(stdout, "x509constraints - X.509 name constraint checker\n\n")
	fmt.Fprintf(stdout, "Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  check    Check a certificate against the name constraints of its issuers")
	fmt.Fprintln(stdout, "  inspect  Show the extensions of a certificate and lint warnings")
	fmt.Fprintln(stdout, "  match    Check whether a certificate is valid for a host name or IP address")
	fmt.Fprintln(stdout, "  version  Show version information")
	fmt.Fprintln(stdout, "  help     Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintf(stdout, "  %s check issuers.pem leaf.pem\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s check -config policy.yaml -json issuers.pem leaf.pem\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s inspect ca.pem\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s match leaf.pem www.example.com\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "x509constraints version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

func outputJSON(v any) {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(stderr, "Error encoding JSON: %v\n", err)
		osExit(1)
	}
}

// fail reports err and exits with status 1.
func fail(err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
