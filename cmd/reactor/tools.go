package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/martinemde/reactor/runloop"
)

const fetchBodyLimit = 64 * 1024

// builtinTools returns the tools available to CLI-driven loops.
func builtinTools() *runloop.ToolSet {
	tools := runloop.NewToolSet()

	tools.Register(runloop.ToolFunc{
		ToolName:        "clock",
		ToolDescription: "returns the current date and time in UTC, takes no input",
		Fn: func(ctx context.Context, input json.RawMessage) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	})

	tools.Register(runloop.ToolFunc{
		ToolName:        "fetch",
		ToolDescription: `performs an HTTP GET and returns the response body, input: {"url": "https://..."}`,
		Fn:              fetchTool,
	})

	return tools
}

func fetchTool(ctx context.Context, input json.RawMessage) (string, error) {
	args, err := runloop.ParseToolInput(input)
	if err != nil {
		return "", err
	}
	url, ok := runloop.GetStringArg(args, "url")
	if !ok || url == "" {
		return "", fmt.Errorf("fetch requires a url argument")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchBodyLimit))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return string(body), nil
}
