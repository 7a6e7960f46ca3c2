package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// opctl sends a single operator command (PING, STATUS, HALT) to a running
// engine and prints the JSON reply.

func main() {
	endpoint := flag.String("endpoint", "http://127.0.0.1:5556/command", "Engine command endpoint")
	flag.Parse()

	cmd := strings.ToUpper(strings.TrimSpace(flag.Arg(0)))
	if cmd == "" {
		fmt.Fprintln(os.Stderr, "usage: opctl [-endpoint URL] <PING|STATUS|HALT>")
		os.Exit(2)
	}

	resp, err := http.Post(*endpoint, "text/plain", strings.NewReader(cmd))
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read response: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}
