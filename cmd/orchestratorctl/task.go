package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// runTask dispatches the `task <verb> ...` subcommand group: start, pause,
// resume, stop, list, get. Every verb is a thin HTTP client call against a
// running `serve` instance's facade-backed routes.
func runTask(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "orchestratorctl task: missing verb (start|pause|resume|stop|list|get)")
		os.Exit(2)
	}
	verb, rest := args[0], args[1:]

	fs := flag.NewFlagSet("task "+verb, flag.ExitOnError)
	host := fs.String("host", "127.0.0.1", "orchestratorctl serve host")
	port := fs.Int("port", 8080, "orchestratorctl serve port")
	jsonOut := fs.Bool("json", false, "print the raw JSON result")

	switch verb {
	case "start":
		config := fs.String("config", "{}", "task config as a JSON object")
		fs.Parse(rest)
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "orchestratorctl task start: missing task type")
			os.Exit(2)
		}
		taskType := fs.Arg(0)

		var raw json.RawMessage
		if err := json.Unmarshal([]byte(*config), &raw); err != nil {
			fmt.Fprintf(os.Stderr, "orchestratorctl task start: invalid -config JSON: %v\n", err)
			os.Exit(2)
		}

		client := newAPIClient(*host, *port)
		var result struct{ TaskID string }
		if err := client.do("POST", "/tasks/"+taskType, raw, &result); err != nil {
			fmt.Fprintf(os.Stderr, "orchestratorctl task start: %v\n", err)
			os.Exit(1)
		}
		if *jsonOut {
			printJSON(result)
			return
		}
		fmt.Println(result.TaskID)

	case "pause", "resume", "stop":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "orchestratorctl task %s: missing task id\n", verb)
			os.Exit(2)
		}
		client := newAPIClient(*host, *port)
		if err := client.do("POST", "/tasks/"+fs.Arg(0)+"/"+verb, nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "orchestratorctl task %s: %v\n", verb, err)
			os.Exit(1)
		}
		fmt.Printf("%s requested\n", verb)

	case "get":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "orchestratorctl task get: missing task id")
			os.Exit(2)
		}
		client := newAPIClient(*host, *port)
		var view map[string]interface{}
		if err := client.do("GET", "/tasks/"+fs.Arg(0), nil, &view); err != nil {
			fmt.Fprintf(os.Stderr, "orchestratorctl task get: %v\n", err)
			os.Exit(1)
		}
		printJSON(view)

	case "list":
		status := fs.String("status", "", "filter by status")
		taskType := fs.String("type", "", "filter by task type")
		fs.Parse(rest)

		client := newAPIClient(*host, *port)
		path := "/tasks"
		if *status != "" || *taskType != "" {
			path += "?"
			if *status != "" {
				path += "status=" + *status
			}
			if *taskType != "" {
				if *status != "" {
					path += "&"
				}
				path += "type=" + *taskType
			}
		}
		var views []map[string]interface{}
		if err := client.do("GET", path, nil, &views); err != nil {
			fmt.Fprintf(os.Stderr, "orchestratorctl task list: %v\n", err)
			os.Exit(1)
		}
		printJSON(views)

	default:
		fmt.Fprintf(os.Stderr, "orchestratorctl task: unknown verb %q\n", verb)
		os.Exit(2)
	}
}
