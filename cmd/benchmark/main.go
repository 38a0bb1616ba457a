// Benchmark tool for testing Kestrel against labeled clause data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/clauses.csv -url http://localhost:8080
//
// This tool:
//   1. Reads labeled clause data (text plus a violation label)
//   2. Sends each clause to Kestrel for a negative list check
//   3. Compares Kestrel's verdict (violation / clean) with the label
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClause represents a row from the labeled dataset.
type LabeledClause struct {
	Text         string
	Category     string
	HasViolation bool
}

// CheckRequest is the Kestrel API request format.
type CheckRequest struct {
	Content string `json:"content"`
}

// CheckResponse is the Kestrel API response format.
type CheckResponse struct {
	Count      int `json:"count"`
	Violations []struct {
		Rule     string `json:"rule"`
		Severity string `json:"severity"`
		Category string `json:"category"`
	} `json:"violations"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Violation flagged as violation
	FalsePositives int64 // Clean clause flagged as violation
	TrueNegatives  int64 // Clean clause passed
	FalseNegatives int64 // Violation passed (missed!)

	TotalProcessed  int64
	TotalViolations int64
	TotalClean      int64
	TotalErrors     int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled clause CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum clauses to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	violationsOnly := flag.Bool("violations-only", false, "Only test labeled violations")
	verbose := flag.Bool("verbose", false, "Print each clause result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/clauses.csv [-url http://localhost:8080]")
		fmt.Println("\nThe CSV needs columns: text, category, has_violation")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Negative List Detection            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go serve")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled clauses from %s...\n", *csvPath)
	clauses, err := readLabeledCSV(*csvPath, *limit, *violationsOnly)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d clauses\n", len(clauses))

	violationCount := 0
	for _, c := range clauses {
		if c.HasViolation {
			violationCount++
		}
	}
	fmt.Printf("  - Violations: %d (%.2f%%)\n", violationCount, 100*float64(violationCount)/float64(len(clauses)))
	fmt.Printf("  - Clean:      %d (%.2f%%)\n", len(clauses)-violationCount, 100*float64(len(clauses)-violationCount)/float64(len(clauses)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(clauses, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readLabeledCSV(path string, limit int, violationsOnly bool) ([]LabeledClause, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	textCol, ok := colIndex["text"]
	if !ok {
		return nil, fmt.Errorf("missing required column: text")
	}
	labelCol, ok := colIndex["has_violation"]
	if !ok {
		return nil, fmt.Errorf("missing required column: has_violation")
	}
	categoryCol, hasCategory := colIndex["category"]

	var clauses []LabeledClause

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		hasViolation := record[labelCol] == "1" || strings.EqualFold(record[labelCol], "true")

		if violationsOnly && !hasViolation {
			continue
		}

		clause := LabeledClause{
			Text:         record[textCol],
			HasViolation: hasViolation,
		}
		if hasCategory {
			clause.Category = record[categoryCol]
		}

		clauses = append(clauses, clause)

		if limit > 0 && len(clauses) >= limit {
			break
		}
	}

	return clauses, nil
}

func runBenchmark(clauses []LabeledClause, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledClause, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for clause := range work {
				start := time.Now()
				result, err := checkClause(client, baseURL, tenantID, clause)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				// Track actual labels
				if clause.HasViolation {
					atomic.AddInt64(&metrics.TotalViolations, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				// Calculate confusion matrix
				predicted := result.Count > 0
				actual := clause.HasViolation

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					text := clause.Text
					if len(text) > 30 {
						text = text[:30]
					}
					fmt.Printf("%s %-30s | Category: %-12s | Label: %-5v | Kestrel hits: %d\n",
						status,
						text,
						clause.Category,
						clause.HasViolation,
						result.Count,
					)
				}
			}
		}()
	}

	// Send work
	for _, clause := range clauses {
		work <- clause
	}
	close(work)

	wg.Wait()

	return metrics
}

func checkClause(client *http.Client, baseURL, tenantID string, clause LabeledClause) (*CheckResponse, error) {
	body, err := json.Marshal(CheckRequest{Content: clause.Text})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:   %d\n", m.TotalProcessed)
	fmt.Printf("   Total Violations:  %d\n", m.TotalViolations)
	fmt.Printf("   Total Clean:       %d\n", m.TotalClean)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    HIT         PASS")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  V  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of hits, how many were actual violations)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of violations, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalViolations > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalViolations) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalViolations) * 100
		fmt.Printf("   Violations Caught:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalViolations, detectionRate)
		fmt.Printf("   Violations Missed:  %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalViolations, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:       %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		cps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f clauses/sec\n", cps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most violations")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some violations")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant violations being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most violations are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - hits are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
