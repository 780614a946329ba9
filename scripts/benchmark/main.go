package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL   = flag.String("api-url", "http://localhost:8080", "Scrollsnap API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 3, "Number of runs per batch size for averaging")
	changed  = flag.Float64("changed", 0.1, "Fraction of rows modified in the delta batch")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
	sizeList = []int{50, 500, 5000}
)

// Request phases, in the order they are sent for one run.
const (
	phaseInitial   = "initial"
	phaseUnchanged = "unchanged"
	phaseDelta     = "incremental"
)

var phases = []string{phaseInitial, phaseUnchanged, phaseDelta}

// --- Request / Response types (mirrors models package) ---

type ingestRequest struct {
	Site        string           `json:"site"`
	ScrollIndex int              `json:"scroll_index"`
	Elements    []map[string]any `json:"elements"`
}

type ingestResponse struct {
	Success      bool         `json:"success"`
	Kind         string       `json:"kind"`
	RowsModified int          `json:"rows_modified"`
	Error        *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type phaseResult struct {
	Phase        string `json:"phase"`
	Ms           int64  `json:"ms"`
	Kind         string `json:"kind"`
	RowsModified int    `json:"rows_modified"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

type runResult struct {
	Run    int           `json:"run"`
	Phases []phaseResult `json:"phases"`
}

type sizeResult struct {
	Rows     int                `json:"rows"`
	Runs     []runResult        `json:"runs"`
	Averages map[string]float64 `json:"averages_ms"`
}

type benchmarkReport struct {
	Timestamp  string       `json:"timestamp"`
	APIURL     string       `json:"api_url"`
	RunsPerRow int          `json:"runs_per_size"`
	Results    []sizeResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Scrollsnap Ingest Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/size: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	// Quick connectivity check.
	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure scrollsnap is running (go run ./cmd/scrollsnap)\n")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	stamp := time.Now().Unix()
	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerRow: *runs,
	}

	for _, rows := range sizeList {
		fmt.Printf("Benchmarking %d rows ...\n", rows)
		sr := sizeResult{Rows: rows}
		site := fmt.Sprintf("bench_%d_%d", rows, stamp)

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkRun(client, site, i, rows)
			for _, p := range rr.Phases {
				if p.Success {
					fmt.Printf("%s %dms  ", p.Phase, p.Ms)
				} else {
					fmt.Printf("%s FAILED: %s  ", p.Phase, p.Error)
				}
			}
			fmt.Println()
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// benchmarkRun sends a baseline, the same batch again, and a batch with a
// fraction of rows edited, all for scroll index run.
func benchmarkRun(client *http.Client, site string, run, rows int) runResult {
	rr := runResult{Run: run}
	base := syntheticElements(rows, 0)
	edits := int(float64(rows) * *changed)

	batches := map[string][]map[string]any{
		phaseInitial:   base,
		phaseUnchanged: base,
		phaseDelta:     syntheticElements(rows, edits),
	}
	for _, phase := range phases {
		rr.Phases = append(rr.Phases, postBatch(client, phase, ingestRequest{
			Site:        site,
			ScrollIndex: run,
			Elements:    batches[phase],
		}))
	}
	return rr
}

// syntheticElements builds rows element records; the first edited rows get
// different text.
func syntheticElements(rows, edited int) []map[string]any {
	out := make([]map[string]any, rows)
	for i := range out {
		text := "item " + strconv.Itoa(i)
		if i < edited {
			text += " (edited)"
		}
		out[i] = map[string]any{
			"webElementId": i + 1,
			"xpath":        fmt.Sprintf("/html/body/main/div[%d]", i+1),
			"text":         text,
			"x":            8,
			"y":            i * 24,
			"width":        640,
			"height":       20,
		}
	}
	return out
}

func postBatch(client *http.Client, phase string, body ingestRequest) phaseResult {
	pr := phaseResult{Phase: phase}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		pr.Error = fmt.Sprintf("marshal error: %v", err)
		return pr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/ingest", bytes.NewReader(bodyBytes))
	if err != nil {
		pr.Error = fmt.Sprintf("request error: %v", err)
		return pr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		pr.Error = fmt.Sprintf("HTTP error: %v", err)
		return pr
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	pr.Ms = time.Since(start).Milliseconds()
	if err != nil {
		pr.Error = fmt.Sprintf("read error: %v", err)
		return pr
	}

	var ir ingestResponse
	if err := json.Unmarshal(raw, &ir); err != nil {
		pr.Error = fmt.Sprintf("decode error (HTTP %d): %v", resp.StatusCode, err)
		return pr
	}
	if !ir.Success {
		if ir.Error != nil {
			pr.Error = fmt.Sprintf("[%s] %s", ir.Error.Code, ir.Error.Message)
		} else {
			pr.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return pr
	}

	pr.Kind = ir.Kind
	pr.RowsModified = ir.RowsModified
	if ir.Kind != phase {
		pr.Error = fmt.Sprintf("unexpected kind %q", ir.Kind)
		return pr
	}
	pr.Success = true
	return pr
}

func computeAverages(results []runResult) map[string]float64 {
	sums := map[string]int64{}
	counts := map[string]int{}
	for _, r := range results {
		for _, p := range r.Phases {
			if !p.Success {
				continue
			}
			sums[p.Phase] += p.Ms
			counts[p.Phase]++
		}
	}
	avg := make(map[string]float64, len(counts))
	for phase, n := range counts {
		avg[phase] = float64(sums[phase]) / float64(n)
	}
	return avg
}

func printTable(results []sizeResult) {
	fmt.Println("=== Summary (average ms) ===")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "Rows\tInitial\tUnchanged\tIncremental\t")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n", r.Rows,
			formatAvg(r.Averages, phaseInitial),
			formatAvg(r.Averages, phaseUnchanged),
			formatAvg(r.Averages, phaseDelta))
	}
	w.Flush()
}

func formatAvg(avg map[string]float64, phase string) string {
	v, ok := avg[phase]
	if !ok {
		return "FAIL"
	}
	return fmt.Sprintf("%.0f", v)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
