package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/georgepadayatti/x509constraints/certvalidator"
	"github.com/georgepadayatti/x509constraints/keys"
)

// MatchCommand implements the 'match' command.
func MatchCommand(args []string) {
	matchFlags := flag.NewFlagSet("match", flag.ExitOnError)
	quiet := matchFlags.Bool("q", false, "Only set the exit status")

	matchFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s match [options] <cert.pem> <dns-name|ip>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Check the subjectAltName of a certificate against a host name or IP address.")
		fmt.Fprintln(stdout, "Exits with status 1 when the certificate does not match.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		matchFlags.PrintDefaults()
	}

	if err := matchFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
		return
	}
	if matchFlags.NArg() != 2 {
		matchFlags.Usage()
		osExit(1)
		return
	}

	matched, err := matchCertificate(matchFlags.Arg(0), matchFlags.Arg(1))
	if err != nil {
		fail(err)
		return
	}

	if !*quiet {
		if matched {
			fmt.Fprintf(stdout, "MATCH: certificate is valid for %s\n", matchFlags.Arg(1))
		} else {
			fmt.Fprintf(stdout, "NO MATCH: certificate is not valid for %s\n", matchFlags.Arg(1))
		}
	}
	if !matched {
		osExit(1)
	}
}

func matchCertificate(certFile, name string) (bool, error) {
	subject, err := certvalidator.ParseSubject(name)
	if err != nil {
		return false, err
	}
	cert, err := keys.LoadCertFromPemDer(certFile)
	if err != nil {
		return false, err
	}
	exts, err := certvalidator.CertificateExtensions(cert)
	if err != nil {
		return false, err
	}
	san, err := certvalidator.SubjectAltNamesOf(exts)
	if err != nil {
		return false, err
	}
	return certvalidator.MatchesSubject(san, subject), nil
}
