package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	payment     string
	token       string
	seeded      int
	watch       bool
)

// Metrics
var (
	totalRequests  uint64
	mintsAccepted  uint64 // 202
	mintsCreated   uint64 // 201
	replayRejected uint64 // 404 on an already fulfilled request
	doubleMints    uint64 // both fulfillments of one request succeeded
	throttled      uint64 // 429
	failOther      uint64
	streamed       uint64 // mint.completed events seen on the stream
)

func main() {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Drive mint requests and fulfillments against a running API",
		Long: `Workloads:
  uniform  request a mint, then fulfill it once
  replay   request a mint, then fulfill it twice concurrently; exactly one must win
  seeded   race fulfillments over request ids seed-0..seed-N-1 created by the seeder

Run the API with ORACLE_AUTO_FULFILL=false so the local oracle does not race the workers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch workload {
			case "uniform", "replay":
			case "seeded":
				if seeded <= 0 {
					return fmt.Errorf("--seeded must be positive for the seeded workload")
				}
			default:
				return fmt.Errorf("unknown workload %q", workload)
			}
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	cmd.Flags().IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&workload, "workload", "uniform", "Workload type: uniform | replay | seeded")
	cmd.Flags().StringVar(&payment, "payment", "10000000000000000", "Payment sent with each mint request")
	cmd.Flags().StringVar(&token, "token", os.Getenv("ORACLE_CALLBACK_TOKEN"), "Bearer token for the fulfillment endpoint")
	cmd.Flags().IntVar(&seeded, "seeded", 0, "Number of seeded pending requests")
	cmd.Flags().BoolVar(&watch, "watch", false, "Count mint.completed events over the websocket stream")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logrus.Infof("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	var conn *websocket.Conn
	watcherDone := make(chan struct{})
	if watch {
		var err error
		if conn, err = dialEvents(); err != nil {
			return err
		}
		go func() {
			defer close(watcherDone)
			watchEvents(conn)
		}()
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	var next atomic.Int64
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, &next)
	}

	wg.Wait()
	d := time.Since(start)

	if conn != nil {
		// give the stream a moment to drain, then hang up
		time.Sleep(500 * time.Millisecond)
		conn.Close()
		<-watcherDone
	}
	printResults(d)
	return nil
}

func worker(wg *sync.WaitGroup, start time.Time, next *atomic.Int64) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		switch workload {
		case "seeded":
			id := next.Add(1) - 1
			if id >= int64(seeded) {
				// every seeded id has been attempted; race over random ones
				id = rand.Int63n(int64(seeded))
			}
			fulfill(client, fmt.Sprintf("seed-%d", id))
		default:
			requestID, ok := requestMint(client)
			if !ok {
				continue
			}
			if workload == "replay" {
				var created atomic.Int32
				var pair sync.WaitGroup
				pair.Add(2)
				for j := 0; j < 2; j++ {
					go func() {
						defer pair.Done()
						if fulfill(client, requestID) == http.StatusCreated {
							created.Add(1)
						}
					}()
				}
				pair.Wait()
				if created.Load() > 1 {
					atomic.AddUint64(&doubleMints, 1)
				}
				continue
			}
			fulfill(client, requestID)
		}
	}
}

func requestMint(client *http.Client) (string, bool) {
	body, _ := json.Marshal(map[string]string{
		"requester": fmt.Sprintf("bench-%d", rand.Intn(1000)),
		"payment":   payment,
	})
	resp, err := client.Post(targetURL+"/api/v1/mints", "application/json", bytes.NewBuffer(body))
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	defer resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	if !record(resp.StatusCode) {
		return "", false
	}
	var accepted struct {
		RequestID string `json:"request_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	return accepted.RequestID, true
}

func fulfill(client *http.Client, requestID string) int {
	body, _ := json.Marshal(map[string]any{
		"request_id":   requestID,
		"random_words": []string{fmt.Sprintf("%d", rand.Uint64())},
	})
	req, _ := http.NewRequest("POST", targetURL+"/api/v1/fulfillments", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0
	}
	resp.Body.Close()

	atomic.AddUint64(&totalRequests, 1)
	record(resp.StatusCode)
	return resp.StatusCode
}

// record counts a response and reports whether it was a success.
func record(status int) bool {
	switch status {
	case http.StatusAccepted:
		atomic.AddUint64(&mintsAccepted, 1)
	case http.StatusCreated:
		atomic.AddUint64(&mintsCreated, 1)
	case http.StatusNotFound:
		atomic.AddUint64(&replayRejected, 1)
		return false
	case http.StatusTooManyRequests:
		atomic.AddUint64(&throttled, 1)
		return false
	default:
		atomic.AddUint64(&failOther, 1)
		return false
	}
	return true
}

// dialEvents subscribes from the current end of the feed.
func dialEvents() (*websocket.Conn, error) {
	resp, err := http.Get(targetURL + "/api/v1/events")
	if err != nil {
		return nil, fmt.Errorf("read event history: %w", err)
	}
	var history []json.RawMessage
	err = json.NewDecoder(resp.Body).Decode(&history)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("decode event history: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(targetURL, "http") + fmt.Sprintf("/api/v1/events?from=%d", len(history))
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}
	return conn, nil
}

func watchEvents(conn *websocket.Conn) {
	for {
		var evt struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&evt); err != nil {
			return
		}
		if evt.Type == "mint.completed" {
			atomic.AddUint64(&streamed, 1)
		}
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	accepted := atomic.LoadUint64(&mintsAccepted)
	created := atomic.LoadUint64(&mintsCreated)
	rejected := atomic.LoadUint64(&replayRejected)
	doubles := atomic.LoadUint64(&doubleMints)
	limited := atomic.LoadUint64(&throttled)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rejected) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"mints_accepted":     accepted,
		"mints_created":      created,
		"fulfill_rejected":   rejected,
		"reject_rate_pct":    rejectRate,
		"double_mints":       doubles,
		"throttled":          limited,
		"errors":             fErr,
		"mint_tps":           float64(created) / d.Seconds(),
		"streamed_completed": atomic.LoadUint64(&streamed),
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		logrus.WithError(err).Warn("Unable to save results")
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
