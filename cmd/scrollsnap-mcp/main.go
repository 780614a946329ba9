package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiError mirrors the error detail of every Scrollsnap API response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ingestResponse mirrors the Scrollsnap ingest API response.
type ingestResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Kind         string    `json:"kind"`
	Site         string    `json:"site"`
	ScrollIndex  int       `json:"scroll_index"`
	XPathCSV     string    `json:"xpath_csv"`
	ModifiedCSV  string    `json:"modified_csv"`
	RowsTotal    int       `json:"rows_total"`
	RowsModified int       `json:"rows_modified"`
	Screenshot   *string   `json:"screenshot"`
	Error        *apiError `json:"error"`
}

// captureResponse mirrors the Scrollsnap capture API response.
type captureResponse struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Site   string    `json:"site"`
	Error  *apiError `json:"error"`
}

// captureStatusResponse mirrors the Scrollsnap capture status API response.
type captureStatusResponse struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Site      string `json:"site"`
	Status    string `json:"status"`
	Completed int    `json:"completed"`
	Scrolls   []struct {
		ScrollIndex int             `json:"scroll_index"`
		Elements    int             `json:"elements"`
		Result      *ingestResponse `json:"result"`
	} `json:"scrolls"`
	Error *apiError `json:"error"`
}

// locateResponse mirrors the Scrollsnap locators API response.
type locateResponse struct {
	Success  bool   `json:"success"`
	FinalURL string `json:"final_url"`
	Title    string `json:"title"`
	Total    int    `json:"total"`
	Elements []struct {
		Tag     string `json:"tag"`
		Locator string `json:"locator"`
		Text    string `json:"text"`
	} `json:"elements"`
	Error *apiError `json:"error"`
}

// historyResponse mirrors the Scrollsnap history API response.
type historyResponse struct {
	Success bool `json:"success"`
	Entries []struct {
		ScrollIndex int    `json:"scroll_index"`
		Kind        string `json:"kind"`
		Artifact    string `json:"artifact"`
		Rows        int    `json:"rows"`
		CreatedAt   string `json:"created_at"`
	} `json:"entries"`
	Error *apiError `json:"error"`
}

func main() {
	apiURL := os.Getenv("SCROLLSNAP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SCROLLSNAP_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SCROLLSNAP_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"scrollsnap",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	ingestTool := mcp.NewTool("ingest_scroll_batch",
		mcp.WithDescription("Submit the visible elements of one scroll position. The first batch for a site and scroll index becomes the baseline; later batches store only the elements that changed."),
		mcp.WithString("site",
			mcp.Required(),
			mcp.Description("Site name such as www.example.com; it is normalized into the artifact folder name"),
		),
		mcp.WithNumber("scroll_index",
			mcp.Required(),
			mcp.Description("Zero-based scroll position of the batch"),
		),
		mcp.WithString("elements",
			mcp.Required(),
			mcp.Description("JSON array of element records; each needs webElementId, xpath and text"),
		),
		mcp.WithString("screenshot",
			mcp.Description("Optional viewport screenshot as a data URL (data:image/png;base64,...)"),
		),
	)
	s.AddTool(ingestTool, handleIngest(apiURL, apiKey))

	captureTool := mcp.NewTool("capture_page",
		mcp.WithDescription("Open a page in the headless browser, scroll through it viewport by viewport and ingest every viewport. Waits for the capture to finish."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to capture"),
		),
		mcp.WithString("site",
			mcp.Description("Site name override (default: derived from the URL host)"),
		),
		mcp.WithNumber("max_scrolls",
			mcp.Description("Maximum number of viewports to capture (default: 20)"),
		),
		mcp.WithBoolean("stealth",
			mcp.Description("Enable anti-bot-detection evasions"),
		),
	)
	s.AddTool(captureTool, handleCapture(apiURL, apiKey))

	locatorsTool := mcp.NewTool("derive_locators",
		mcp.WithDescription("Derive a stable XPath locator for every element of a static HTML document, given inline or fetched from a URL."),
		mcp.WithString("url",
			mcp.Description("URL of the page to fetch (exclusive with html)"),
		),
		mcp.WithString("html",
			mcp.Description("Inline HTML document (exclusive with url)"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector restricting the elements (default: every element)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of locators returned (default: 500)"),
		),
	)
	s.AddTool(locatorsTool, handleLocators(apiURL, apiKey))

	historyTool := mcp.NewTool("ingest_history",
		mcp.WithDescription("List the artifacts recorded for a site, newest first."),
		mcp.WithString("site",
			mcp.Required(),
			mcp.Description("Site name as sent to ingest"),
		),
		mcp.WithNumber("scroll_index",
			mcp.Description("Restrict to one scroll position"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of entries (default: 100)"),
		),
	)
	s.AddTool(historyTool, handleHistory(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the Scrollsnap API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollCapture polls a capture job until status is no longer "processing" or context is cancelled.
func pollCapture(ctx context.Context, client *http.Client, endpoint, apiKey string) (*captureStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, endpoint, apiKey, nil)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}
			var status captureStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != "processing" {
				return &status, nil
			}
		}
	}
}

func errorText(fallback string, e *apiError) string {
	if e == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func handleIngest(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		site, err := request.RequireString("site")
		if err != nil {
			return mcp.NewToolResultError("site is required"), nil
		}
		scrollIndex, err := request.RequireInt("scroll_index")
		if err != nil {
			return mcp.NewToolResultError("scroll_index is required"), nil
		}
		elementsStr, err := request.RequireString("elements")
		if err != nil {
			return mcp.NewToolResultError("elements is required"), nil
		}

		// Validate elements is a JSON array.
		var elements []json.RawMessage
		if err := json.Unmarshal([]byte(elementsStr), &elements); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("elements must be a JSON array: %v", err)), nil
		}

		payload := map[string]any{
			"site":         site,
			"scroll_index": scrollIndex,
			"elements":     elements,
		}
		if shot := request.GetString("screenshot", ""); shot != "" {
			payload["screenshot"] = shot
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/ingest", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ingest request failed: %v", err)), nil
		}

		var resp ingestResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse ingest response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("ingest failed", resp.Error)), nil
		}

		return mcp.NewToolResultText(formatIngest(&resp)), nil
	}
}

func formatIngest(r *ingestResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s, scroll %d, %d rows)\n", r.Message, r.Site, r.ScrollIndex, r.RowsTotal)
	switch {
	case r.ModifiedCSV != "":
		fmt.Fprintf(&sb, "Modified rows: %d\nDelta: %s\n", r.RowsModified, r.ModifiedCSV)
	case r.XPathCSV != "":
		fmt.Fprintf(&sb, "Baseline: %s\n", r.XPathCSV)
	}
	if r.Screenshot != nil {
		fmt.Fprintf(&sb, "Screenshot: %s\n", *r.Screenshot)
	}
	return sb.String()
}

func handleCapture(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{"url": pageURL}
		if site := request.GetString("site", ""); site != "" {
			payload["site"] = site
		}
		if n := request.GetInt("max_scrolls", 0); n > 0 {
			payload["max_scrolls"] = n
		}
		if request.GetBool("stealth", false) {
			payload["stealth"] = true
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/capture", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("capture request failed: %v", err)), nil
		}

		var started captureResponse
		if err := json.Unmarshal(respBody, &started); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse capture response: %v", err)), nil
		}
		if started.ID == "" {
			return mcp.NewToolResultError(errorText("capture job creation failed", started.Error)), nil
		}

		// Poll for completion.
		status, err := pollCapture(ctx, client, apiURL+"/api/v1/capture/"+started.ID, apiKey)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling capture job failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Capture %s of %s: %s (%d viewports)\n", status.ID, status.URL, status.Status, status.Completed)
		if status.Error != nil {
			fmt.Fprintf(&sb, "Error: %s\n", errorText("", status.Error))
		}
		sb.WriteString("\n")
		for _, sc := range status.Scrolls {
			if sc.Result == nil {
				continue
			}
			fmt.Fprintf(&sb, "--- [%d] %d elements ---\n%s\n", sc.ScrollIndex, sc.Elements, formatIngest(sc.Result))
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleLocators(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 120 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]any{}
		if u := request.GetString("url", ""); u != "" {
			payload["url"] = u
		}
		if h := request.GetString("html", ""); h != "" {
			payload["html"] = h
		}
		if len(payload) != 1 {
			return mcp.NewToolResultError("exactly one of url or html is required"), nil
		}
		if sel := request.GetString("selector", ""); sel != "" {
			payload["selector"] = sel
		}
		if n := request.GetInt("limit", 0); n > 0 {
			payload["limit"] = n
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/locators", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("locators request failed: %v", err)), nil
		}

		var resp locateResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse locators response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("locator derivation failed", resp.Error)), nil
		}

		var sb strings.Builder
		if resp.Title != "" || resp.FinalURL != "" {
			fmt.Fprintf(&sb, "Title: %s\nSource: %s\n\n", resp.Title, resp.FinalURL)
		}
		fmt.Fprintf(&sb, "%d of %d elements:\n\n", len(resp.Elements), resp.Total)
		for _, el := range resp.Elements {
			if el.Text != "" {
				fmt.Fprintf(&sb, "%s\t<%s> %s\n", el.Locator, el.Tag, el.Text)
			} else {
				fmt.Fprintf(&sb, "%s\t<%s>\n", el.Locator, el.Tag)
			}
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleHistory(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		site, err := request.RequireString("site")
		if err != nil {
			return mcp.NewToolResultError("site is required"), nil
		}

		q := url.Values{"site": {site}}
		args := request.GetArguments()
		if _, ok := args["scroll_index"]; ok {
			q.Set("scroll_index", strconv.Itoa(request.GetInt("scroll_index", 0)))
		}
		if n := request.GetInt("limit", 0); n > 0 {
			q.Set("limit", strconv.Itoa(n))
		}

		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/history?"+q.Encode(), apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history request failed: %v", err)), nil
		}

		var resp historyResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse history response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errorText("history lookup failed", resp.Error)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d entries for %s:\n\n", len(resp.Entries), site)
		for _, e := range resp.Entries {
			fmt.Fprintf(&sb, "%s  scroll %d  %-11s  %4d rows  %s\n", e.CreatedAt, e.ScrollIndex, e.Kind, e.Rows, e.Artifact)
		}

		return mcp.NewToolResultText(sb.String()), nil
	}
}
