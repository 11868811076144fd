// Command healthcheck checks the local prharmony health endpoint and exits
// non-zero when the service is unreachable or degraded. It is meant for
// container HEALTHCHECK directives.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const defaultAddr = "127.0.0.1:8080"

func main() {
	os.Exit(check(normalizeAddr(os.Getenv("PRHARMONY_LISTEN_ADDR"))))
}

type healthBody struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures"`
}

func check(addr string) int {
	client := cleanhttp.DefaultClient()
	client.Timeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return 0
	}

	var body healthBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		names := make([]string, 0, len(body.Failures))
		for name := range body.Failures {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(os.Stderr, "healthcheck: %s: %s\n", name, body.Failures[name])
		}
	}
	return 1
}

// normalizeAddr connects to loopback when the server binds all interfaces;
// the check runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
