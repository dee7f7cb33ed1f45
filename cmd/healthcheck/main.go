// Command healthcheck probes the resilience API's liveness endpoint and
// exits non-zero when the service is down. It exists so container
// HEALTHCHECK directives do not need curl in the image.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the resilience API")
	path := flag.String("path", "/health/live", "health endpoint path")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	resp, err := client.Get(*addr + *path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("ok")
}
