// Command orchestratorctl is the CLI adapter over OrchestrationFacade
// (SPEC_FULL.md §6). It mirrors cmd/quaero/main.go's flag style --
// repeatable -config/-c, a -json output toggle -- and adds subcommand
// dispatch: `serve` boots the full process and the HTTP adapter in this
// same binary; `crawl` and `task ...` are thin HTTP clients against a
// running `serve` instance, the same way any operator tool talks to a
// long-lived server rather than opening its SQLite store directly.
package main

import (
	"fmt"
	"os"
)

// configPaths is a custom flag type that allows multiple -config flags,
// carried over verbatim from cmd/quaero/main.go.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }
func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "crawl":
		runCrawl(os.Args[2:])
	case "task":
		runTask(os.Args[2:])
	case "version", "-version", "-v":
		fmt.Println("orchestratorctl version " + version)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "orchestratorctl: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `orchestratorctl <command> [flags]

Commands:
  serve                       boot the orchestration process and HTTP adapter
  crawl -url=<seed>           submit a crawl task
  task start <type>           submit a background task
  task pause|resume|stop <id> control a running task
  task get <id>                fetch one task's current view
  task list                    list tasks
  version                      print version information

Run "orchestratorctl <command> -h" for command-specific flags.`)
}
