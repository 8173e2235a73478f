// Seed tool for loading sales data into Kestrel and exercising the analytics.
//
// Usage:
//
//	go run ./cmd/seed -csv /path/to/sales.csv -url http://localhost:8080
//	go run ./cmd/seed -generate 5000 -sellers 25
//
// This tool:
//  1. Reads sales rows (seller,amount,paymentType) or generates random ones
//  2. Creates every distinct seller through the API
//  3. Records each sale with a pool of concurrent workers
//  4. Prints the most productive seller of the last day and a latency summary
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is one input row.
type Sale struct {
	Seller      string
	Amount      decimal.Decimal
	PaymentType string
}

// Stats tracks seeding results
type Stats struct {
	Recorded int64
	Rejected int64
	Errors   int64

	ProcessingTimeMs int64
}

var paymentTypes = []string{"CASH", "CARD", "TRANSFER"}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to a seller,amount,paymentType CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	generate := flag.Int("generate", 0, "Generate this many random sales instead of reading a CSV")
	sellers := flag.Int("sellers", 10, "Number of sellers for generated sales")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 500, "Threshold for the below-threshold report")
	verbose := flag.Bool("verbose", false, "Print each failed request")
	flag.Parse()

	if *csvPath == "" && *generate <= 0 {
		fmt.Println("Usage: seed -csv /path/to/sales.csv | -generate N [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                 KESTREL SEED - Sales Loader                   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	client := &http.Client{Timeout: 10 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	var (
		sales []Sale
		err   error
	)
	if *csvPath != "" {
		sales, err = readSalesCSV(*csvPath)
	} else {
		sales = generateSales(*generate, *sellers)
	}
	if err != nil {
		fmt.Printf("ERROR: Failed to load sales: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d sales\n", len(sales))

	sellerIDs, err := createSellers(client, *baseURL, sales)
	if err != nil {
		fmt.Printf("ERROR: Failed to create sellers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Created %d sellers\n", len(sellerIDs))

	fmt.Printf("\nRecording sales with %d workers...\n", *workers)
	startTime := time.Now()
	stats := recordSales(client, *baseURL, sales, sellerIDs, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(stats, duration)
	printReports(client, *baseURL, *threshold)
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readSalesCSV(path string) ([]Sale, error) {
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
	for _, col := range []string{"seller", "amount", "paymenttype"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var sales []Sale
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(record[colIndex["amount"]]))
		if err != nil {
			continue
		}
		sales = append(sales, Sale{
			Seller:      strings.TrimSpace(record[colIndex["seller"]]),
			Amount:      amount,
			PaymentType: strings.TrimSpace(record[colIndex["paymenttype"]]),
		})
	}

	return sales, nil
}

func generateSales(n, sellers int) []Sale {
	if sellers <= 0 {
		sellers = 1
	}
	sales := make([]Sale, n)
	for i := range sales {
		sales[i] = Sale{
			Seller:      fmt.Sprintf("Seller %03d", rand.IntN(sellers)+1),
			Amount:      decimal.New(rand.Int64N(100000)+1, -2),
			PaymentType: paymentTypes[rand.IntN(len(paymentTypes))],
		}
	}
	return sales
}

// createSellers registers each distinct seller name once. The name doubles
// as the idempotency key so reruns do not create duplicates within the
// server's replay window.
func createSellers(client *http.Client, baseURL string, sales []Sale) (map[string]string, error) {
	ids := make(map[string]string)
	for _, s := range sales {
		if _, ok := ids[s.Seller]; ok {
			continue
		}
		var created struct {
			ID string `json:"id"`
		}
		body := map[string]string{
			"name":        s.Seller,
			"contactInfo": strings.ReplaceAll(strings.ToLower(s.Seller), " ", ".") + "@example.com",
		}
		if err := postJSON(client, baseURL+"/api/v1/seller", "seed-seller-"+s.Seller, body, &created); err != nil {
			return nil, fmt.Errorf("seller %q: %w", s.Seller, err)
		}
		ids[s.Seller] = created.ID
	}
	return ids, nil
}

func recordSales(client *http.Client, baseURL string, sales []Sale, sellerIDs map[string]string, numWorkers int, verbose bool) *Stats {
	stats := &Stats{}

	// Create work channel
	work := make(chan Sale, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for sale := range work {
				start := time.Now()
				err := postJSON(client, baseURL+"/api/v1/transaction", "", map[string]any{
					"sellerId":    sellerIDs[sale.Seller],
					"amount":      sale.Amount,
					"paymentType": sale.PaymentType,
				}, nil)
				atomic.AddInt64(&stats.ProcessingTimeMs, time.Since(start).Milliseconds())

				var statusErr *statusError
				switch {
				case err == nil:
					atomic.AddInt64(&stats.Recorded, 1)
				case errors.As(err, &statusErr) && statusErr.Code < http.StatusInternalServerError:
					atomic.AddInt64(&stats.Rejected, 1)
				default:
					atomic.AddInt64(&stats.Errors, 1)
				}
				if err != nil && verbose {
					fmt.Printf("ERROR: %s %s -> %v\n", sale.Seller, sale.Amount, err)
				}
			}
		}()
	}

	// Send work
	for _, sale := range sales {
		work <- sale
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return stats
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func postJSON(client *http.Client, target, idempotencyKey string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(client *http.Client, target string, out any) error {
	resp, err := client.Get(target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printResults(s *Stats, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        SEED RESULTS                           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	total := s.Recorded + s.Rejected + s.Errors
	fmt.Printf("\n   Recorded:         %d\n", s.Recorded)
	fmt.Printf("   Rejected (4xx):   %d\n", s.Rejected)
	fmt.Printf("   Errors:           %d\n", s.Errors)

	fmt.Printf("\n   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if total > 0 {
		avgMs := float64(s.ProcessingTimeMs) / float64(total)
		tps := float64(total) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
}

func printReports(client *http.Client, baseURL string, threshold float64) {
	end := time.Now().UTC().Add(time.Minute)
	start := end.Add(-24 * time.Hour)
	q := url.Values{}
	q.Set("startDate", start.Format(time.RFC3339))
	q.Set("endDate", end.Format(time.RFC3339))

	fmt.Println("\n   Last 24 hours")

	var top struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := getJSON(client, baseURL+"/api/v1/seller/most-productive?"+q.Encode(), &top); err != nil {
		fmt.Printf("   Most productive:  unavailable (%v)\n", err)
	} else {
		fmt.Printf("   Most productive:  %s (%s)\n", top.Name, top.ID)
	}

	q.Set("threshold", decimal.NewFromFloat(threshold).String())
	var below struct {
		TotalElements int64 `json:"totalElements"`
	}
	if err := getJSON(client, baseURL+"/api/v1/seller/below-threshold?"+q.Encode(), &below); err != nil {
		fmt.Printf("   Below %-10.2f  unavailable (%v)\n", threshold, err)
	} else {
		fmt.Printf("   Below %-10.2f  %d sellers\n", threshold, below.TotalElements)
	}
	fmt.Println()
}
