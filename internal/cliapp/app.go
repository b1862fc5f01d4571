// Package cliapp implements the bal binary's subcommand dispatch: start,
// stop, graceful, check, doctor and status. Dispatch is a manual switch on
// the subcommand name plus one stdlib flag.FlagSet per subcommand — not a
// CLI framework, since nothing in the retrieved example pack imports one
// directly (see DESIGN.md).
package cliapp

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/mir00r/bal/internal/config"
	"github.com/mir00r/bal/internal/pidfile"
	"github.com/mir00r/bal/internal/supervisor"
	"github.com/mir00r/bal/pkg/logger"
)

// outputMode resolves the --json/--verbose/--brief flag precedence named
// in spec.md §9's Open Question: --json wins outright; otherwise --verbose
// wins over --brief, and --brief (or neither) gives the concise default.
type outputMode struct {
	json    bool
	verbose bool
}

func resolveOutputMode(jsonFlag, verboseFlag bool) outputMode {
	if jsonFlag {
		return outputMode{json: true}
	}
	return outputMode{verbose: verboseFlag}
}

// Run dispatches args (os.Args[1:]) to the matching subcommand and returns
// the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "start":
		return runStart(args[1:], stdout, stderr)
	case "stop":
		return runStop(stdout, stderr)
	case "graceful":
		return runGraceful(stdout, stderr)
	case "check":
		return runCheckCmd(args[1:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(args[1:], stdout, stderr)
	case "status":
		return runStatusCmd(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s\n", args[0], usage())
		return 1
	}
}

func usage() string {
	return `bal - ultra-lightweight L4 TCP load balancer

recommended flow: check -> doctor -> status

  bal start [--config FILE] [--daemon]
  bal stop
  bal graceful
  bal check [--config FILE] [--strict] [--json] [--verbose]
  bal doctor [--config FILE] [--json] [--verbose] [--brief]
  bal status [--config FILE] [--json] [--verbose] [--brief]`
}

func runStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file path")
	daemon := fs.Bool("daemon", false, "run as a background daemon")
	fs.BoolVar(daemon, "d", false, "run as a background daemon (shorthand)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *daemon {
		return runStartDaemon(*configPath, stdout, stderr)
	}
	return runStartForeground(*configPath, stderr)
}

func runStartForeground(configPath string, stderr io.Writer) int {
	resolved, err := config.Resolve(configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	snap, err := config.Load(resolved)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := snap.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	snap.ConfigPath = resolved

	guard, err := pidfile.Acquire()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer guard.Release()

	log, err := logger.New(logger.Config{Level: snap.LogLevel})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	sup := supervisor.New(snap, log)
	if err := sup.Run(context.Background()); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// runStartDaemon re-execs the current binary in foreground mode, detached
// from the controlling terminal, and returns immediately; the child
// acquires its own PID file once it starts running.
func runStartDaemon(configPath string, stdout, stderr io.Writer) int {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	childArgs := []string{"start"}
	if configPath != "" {
		childArgs = append(childArgs, "--config", configPath)
	}

	cmd := exec.Command(self, childArgs...)
	cmd.Stdin = nil
	if devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0); err == nil {
		cmd.Stdout = devnull
		cmd.Stderr = devnull
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "bal started in background (pid %d)\n", cmd.Process.Pid)
	return 0
}

func runStop(stdout, stderr io.Writer) int {
	if err := pidfile.Send(syscall.SIGTERM); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, "sent stop signal")
	return 0
}

func runGraceful(stdout, stderr io.Writer) int {
	if err := pidfile.Send(syscall.SIGHUP); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, "sent reload signal")
	return 0
}

func runCheckCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file path")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	jsonOut := fs.Bool("json", false, "print JSON report")
	verbose := fs.Bool("verbose", false, "print detailed report")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	report, err := RunCheck(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	mode := resolveOutputMode(*jsonOut, *verbose)
	if mode.json {
		if err := printJSON(stdout, report); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, report.ToPlainText(mode.verbose))
	}

	if report.HasErrors() || (*strict && report.HasWarnings()) {
		return 1
	}
	return 0
}

func runDoctorCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file path")
	jsonOut := fs.Bool("json", false, "print JSON report")
	verbose := fs.Bool("verbose", false, "print detailed report")
	fs.Bool("brief", false, "force compact report (default)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	report := RunDoctor(*configPath)
	mode := resolveOutputMode(*jsonOut, *verbose)
	if mode.json {
		if err := printJSON(stdout, report); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, report.ToPlainText(mode.verbose))
	}

	if report.HasCriticalFailure() {
		return 1
	}
	return 0
}

func runStatusCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file path")
	jsonOut := fs.Bool("json", false, "print JSON report")
	verbose := fs.Bool("verbose", false, "print detailed report")
	fs.Bool("brief", false, "force compact report (default)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	report, err := RunStatus(*configPath)
	if report == nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	mode := resolveOutputMode(*jsonOut, *verbose)
	if mode.json {
		if jerr := printJSON(stdout, report); jerr != nil {
			fmt.Fprintln(stderr, jerr)
			return 1
		}
	} else {
		fmt.Fprintln(stdout, report.ToPlainText(mode.verbose))
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
