package main

import (
	"flag"
	"fmt"
	"os"
)

// runCrawl is the `crawl` subcommand: POST /crawls against a running
// `serve` instance.
func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	host := fs.String("host", "127.0.0.1", "orchestratorctl serve host")
	port := fs.Int("port", 8080, "orchestratorctl serve port")
	seedURL := fs.String("url", "", "seed URL to crawl")
	maxPages := fs.Int("max-pages", 0, "maximum pages to fetch (0 = worker default)")
	priority := fs.Int("priority", 0, "admission priority (higher runs first)")
	jsonOut := fs.Bool("json", false, "print the raw JSON result")
	fs.Parse(args)

	if *seedURL == "" {
		fmt.Fprintln(os.Stderr, "orchestratorctl crawl: -url is required")
		os.Exit(2)
	}

	client := newAPIClient(*host, *port)
	req := map[string]interface{}{"url": *seedURL, "maxPages": *maxPages, "priority": *priority}

	var result struct {
		JobID     string
		StartedAt string
		Stage     string
	}
	if err := client.do("POST", "/crawls", req, &result); err != nil {
		fmt.Fprintf(os.Stderr, "orchestratorctl crawl: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		printJSON(result)
		return
	}
	fmt.Printf("started crawl %s (stage=%s)\n", result.JobID, result.Stage)
}
