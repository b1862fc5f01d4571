// Command bal is the load balancer's single binary: it serves traffic
// (start), controls a running daemon (stop, graceful), and diagnoses
// configuration and runtime health (check, doctor, status).
package main

import (
	"os"

	"github.com/mir00r/bal/internal/cliapp"
)

func main() {
	os.Exit(cliapp.Run(os.Args[1:], os.Stdout, os.Stderr))
}
