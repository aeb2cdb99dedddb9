package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/spf13/cobra"
)

// benchCase is one application from the input CSV. Label is the expected
// status when the file carries one.
type benchCase struct {
	Request domain.LoanRequest
	Label   domain.LoanStatus
}

// benchStats tracks benchmark results.
type benchStats struct {
	Processed int64
	Errors    int64
	Throttled int64
	Approved  int64
	Rejected  int64
	Pending   int64
	Review    int64

	Labelled int64
	Agreed   int64

	LatencyMs int64
}

type benchOptions struct {
	baseURL    string
	userPrefix string
	workers    int
	limit      int
	verbose    bool
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench CSV",
		Short: "Submit applications from a CSV to a running server",
		Long: `Read applications from a CSV with the columns
amount_requested, num_debts, total_debt_amount, monthly_emis, total_assets,
monthly_income and an optional label (approved, rejected, pending), then POST
each one to /api/loans with concurrent workers. Every row uses its own user ID
so the per-user application limit does not throttle the run.`,
		Example: `  credbudctl bench applications.csv --url http://localhost:8080 --workers 20`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 1 {
				return fmt.Errorf("--workers must be at least 1, got %d", opts.workers)
			}
			cases, err := readBenchCSV(args[0], opts.limit)
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				return errors.New("no applications in file")
			}

			client := &http.Client{Timeout: 10 * time.Second}
			if err := checkHealth(cmd.Context(), client, opts.baseURL); err != nil {
				return fmt.Errorf("credbud not reachable at %s: %w", opts.baseURL, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running %d applications with %d workers against %s\n", len(cases), opts.workers, opts.baseURL)

			start := time.Now()
			stats := runBench(cmd.Context(), client, cases, opts, out)
			printBenchResults(out, stats, time.Since(start))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "url", "http://localhost:8080", "CredBud base URL")
	f.StringVar(&opts.userPrefix, "user-prefix", "bench", "prefix of the X-User-ID sent per row")
	f.IntVarP(&opts.workers, "workers", "w", 10, "number of concurrent workers")
	f.IntVar(&opts.limit, "limit", 10000, "maximum applications to submit (0 = all)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print each result")
	return cmd
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var benchColumns = []string{
	"amount_requested", "num_debts", "total_debt_amount",
	"monthly_emis", "total_assets", "monthly_income",
}

func readBenchCSV(path string, limit int) ([]benchCase, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range benchColumns {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var cases []benchCase
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		num := func(col string) float64 {
			i := colIndex[col]
			if i >= len(record) {
				return 0
			}
			v, _ := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			return v
		}

		c := benchCase{Request: domain.LoanRequest{
			AmountRequested: num("amount_requested"),
			NumDebts:        int(num("num_debts")),
			TotalDebtAmount: num("total_debt_amount"),
			MonthlyEMIs:     num("monthly_emis"),
			TotalAssets:     num("total_assets"),
			MonthlyIncome:   num("monthly_income"),
		}}
		if i, ok := colIndex["label"]; ok && i < len(record) {
			c.Label = domain.LoanStatus(strings.ToLower(strings.TrimSpace(record[i])))
		}
		cases = append(cases, c)

		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, nil
}

func runBench(ctx context.Context, client *http.Client, cases []benchCase, opts benchOptions, out io.Writer) *benchStats {
	stats := &benchStats{}

	type job struct {
		n int
		c benchCase
	}
	work := make(chan job, 100)
	var wg sync.WaitGroup
	var outMu sync.Mutex

	for i := 0; i < opts.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := range work {
				userID := fmt.Sprintf("%s-%d", opts.userPrefix, j.n)
				start := time.Now()
				app, err := submit(ctx, client, opts.baseURL, userID, j.c.Request)
				atomic.AddInt64(&stats.LatencyMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&stats.Processed, 1)

				if err != nil {
					if errors.Is(err, errThrottled) {
						atomic.AddInt64(&stats.Throttled, 1)
					}
					atomic.AddInt64(&stats.Errors, 1)
					if opts.verbose {
						outMu.Lock()
						fmt.Fprintf(out, "ERROR row %d: %v\n", j.n, err)
						outMu.Unlock()
					}
					continue
				}

				switch app.Status {
				case domain.LoanApproved:
					atomic.AddInt64(&stats.Approved, 1)
				case domain.LoanRejected:
					atomic.AddInt64(&stats.Rejected, 1)
				case domain.LoanUnderReview:
					atomic.AddInt64(&stats.Review, 1)
				default:
					atomic.AddInt64(&stats.Pending, 1)
				}

				if j.c.Label != "" {
					atomic.AddInt64(&stats.Labelled, 1)
					if j.c.Label == app.Status {
						atomic.AddInt64(&stats.Agreed, 1)
					}
				}

				if opts.verbose {
					outMu.Lock()
					fmt.Fprintf(out, "row %-6d | amount %12.2f | income %10.2f | %-12s %6.2f%%\n",
						j.n, j.c.Request.AmountRequested, j.c.Request.MonthlyIncome, app.Status, app.AcceptanceRate)
					outMu.Unlock()
				}
			}
		}()
	}

	for n, c := range cases {
		if ctx.Err() != nil {
			break
		}
		work <- job{n: n, c: c}
	}
	close(work)
	wg.Wait()

	return stats
}

var errThrottled = errors.New("throttled")

func submit(ctx context.Context, client *http.Client, baseURL, userID string, req domain.LoanRequest) (*domain.LoanApplication, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/loans", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted:
	case http.StatusTooManyRequests:
		return nil, errThrottled
	default:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var app domain.LoanApplication
	if err := json.NewDecoder(resp.Body).Decode(&app); err != nil {
		return nil, err
	}
	return &app, nil
}

func printBenchResults(out io.Writer, s *benchStats, duration time.Duration) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "RESULTS")
	fmt.Fprintf(out, "   Processed:     %d\n", s.Processed)
	fmt.Fprintf(out, "   Errors:        %d (throttled %d)\n", s.Errors, s.Throttled)
	fmt.Fprintf(out, "   Approved:      %d\n", s.Approved)
	fmt.Fprintf(out, "   Rejected:      %d\n", s.Rejected)
	fmt.Fprintf(out, "   Pending:       %d\n", s.Pending)
	fmt.Fprintf(out, "   Under review:  %d\n", s.Review)

	if s.Labelled > 0 {
		fmt.Fprintf(out, "   Agreement:     %d / %d (%.2f%%)\n", s.Agreed, s.Labelled, 100*float64(s.Agreed)/float64(s.Labelled))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "PERFORMANCE")
	fmt.Fprintf(out, "   Duration:      %v\n", duration.Round(time.Millisecond))
	if s.Processed > 0 {
		fmt.Fprintf(out, "   Avg latency:   %.2f ms\n", float64(s.LatencyMs)/float64(s.Processed))
		fmt.Fprintf(out, "   Throughput:    %.2f req/sec\n", float64(s.Processed)/duration.Seconds())
	}
	fmt.Fprintln(out)
}
