// Command stream-client initializes a session against a running server,
// calls a couple of tools, and then consumes the server-push channel.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
)

const sessionHeader = "mcp-session-id"

func main() {
	serverURL := flag.String("url", "http://localhost:3000/mcp", "MCP server endpoint")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 0}

	sessionID, err := initialize(ctx, client, *serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session established: %s\n", sessionID)

	if err := call(ctx, client, *serverURL, sessionID, shared.MethodListTools, nil); err != nil {
		fmt.Fprintf(os.Stderr, "tools/list failed: %v\n", err)
	}
	if err := call(ctx, client, *serverURL, sessionID, shared.MethodCallTool, shared.CallToolParams{
		Name:      "get-uptime",
		Arguments: map[string]interface{}{},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "tools/call failed: %v\n", err)
	}

	if err := stream(ctx, client, *serverURL, sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "stream failed: %v\n", err)
		os.Exit(1)
	}
}

func initialize(ctx context.Context, client *http.Client, url string) (string, error) {
	body, err := json.Marshal(shared.JSONRPCRequest{
		JSONRPC: shared.JSONRPCVersion,
		ID:      1,
		Method:  shared.MethodInitialize,
		Params: shared.InitializeParams{
			ProtocolVersion: shared.ProtocolVersion,
			ClientInfo:      shared.ServerInfo{Name: "stream-client", Version: "1.0.0"},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sessionID := resp.Header.Get(sessionHeader)
	if sessionID == "" {
		return "", fmt.Errorf("server did not assign a session id (status %d)", resp.StatusCode)
	}
	return sessionID, nil
}

func call(ctx context.Context, client *http.Client, url, sessionID, method string, params interface{}) error {
	body, err := json.Marshal(shared.JSONRPCRequest{
		JSONRPC: shared.JSONRPCVersion,
		ID:      time.Now().UnixNano(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionHeader, sessionID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", method, result)
	return nil
}

// stream opens the push channel and prints notifications until the server
// finishes the demo sequence or the context is cancelled.
func stream(ctx context.Context, client *http.Client, url, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(sessionHeader, sessionID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Printf("push: %s\n", ev.Data)
	}
	return nil
}
