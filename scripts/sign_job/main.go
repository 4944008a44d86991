package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"fluxconn/internal/security"
)

// Prints a signed job command the agent will accept, for pushing by hand
// through a control-plane test harness. Trailing arguments become bind
// values: anything that parses as JSON is taken as-is, the rest as strings.
func main() {
	id := flag.String("id", "", "job id (random when empty)")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Println("Usage: go run ./scripts/sign_job [-id job-id] <secret> <query> [arg...]")
		fmt.Println("Example: go run ./scripts/sign_job mysecret 'SELECT id FROM users WHERE tenant = ?' tenant-A")
		return
	}

	secret, query := flag.Arg(0), flag.Arg(1)
	if *id == "" {
		*id = uuid.New().String()
	}

	var args []any
	for _, raw := range flag.Args()[2:] {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		args = append(args, v)
	}

	ts := time.Now().Unix()
	sig, err := security.SignJob(secret, *id, query, args, ts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	out, _ := json.Marshal(map[string]any{
		"id":    *id,
		"query": query,
		"args":  args,
		"ts":    ts,
		"sig":   sig,
	})
	fmt.Println(string(out))
}
