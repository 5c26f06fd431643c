package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/collectpay/collect-api/internal/auth"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
)

var payers = []string{"Rahul Kumar", "Priya Sharma", "Amit Patel", "Sneha Reddy", "Vikram Singh"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// envelope mirrors the API's standard response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// simulationClient drives the full payment flow against a running server
type simulationClient struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	mu        sync.Mutex
	stats     map[string]*routeStats
}

// newSimulationClient registers a throwaway merchant and captures its API
// credentials for signed order creation
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"register": {name: "Register Merchant"},
			"create":   {name: "Create Order (signed)"},
			"qr":       {name: "Attach QR"},
			"notify":   {name: "Ingest Notification"},
			"read":     {name: "Read Order"},
		},
	}

	body := map[string]interface{}{
		"name":          "Simulation Merchant",
		"email":         fmt.Sprintf("sim-%d@example.com", time.Now().UnixNano()),
		"password":      "simulation-pass",
		"business_name": "Simulation Stores",
	}
	data, err := sc.do("register", http.MethodPost, "/api/auth/register", body, nil)
	if err != nil {
		return nil, err
	}

	var reg struct {
		Merchant struct {
			APIKey    string `json:"api_key"`
			APISecret string `json:"api_secret"`
		} `json:"merchant"`
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	sc.apiKey = reg.Merchant.APIKey
	sc.apiSecret = reg.Merchant.APISecret
	return sc, nil
}

// do sends a request, records its duration and returns the data payload
func (sc *simulationClient) do(stat, method, path string, body interface{}, headers map[string]string) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, sc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)

	sc.mu.Lock()
	rs := sc.stats[stat]
	rs.addDuration(elapsed)
	if err != nil || resp.StatusCode >= 400 {
		rs.failures++
	}
	sc.mu.Unlock()

	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// createOrder creates a signed order and returns its id
func (sc *simulationClient) createOrder() (string, error) {
	body := map[string]interface{}{
		"customer_name":   "Customer " + payers[rand.Intn(len(payers))],
		"customer_mobile": fmt.Sprintf("9%09d", rand.Intn(1000000000)),
		"amount":          float64(rand.Intn(49900)+100) / 100,
		"receiver_upi_id": "simstores@upi",
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequest(http.MethodPost, sc.baseURL+"/api/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", sc.apiKey)
	req.Header.Set("X-Signature", auth.SignBody(sc.apiSecret, payload))

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)

	sc.mu.Lock()
	rs := sc.stats["create"]
	rs.addDuration(elapsed)
	if err != nil || resp.StatusCode >= 400 {
		rs.failures++
	}
	sc.mu.Unlock()

	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("create order: status %d: %s", resp.StatusCode, raw)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	var order struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(env.Data, &order); err != nil {
		return "", err
	}
	return order.OrderID, nil
}

// attachQR moves the order to PENDING
func (sc *simulationClient) attachQR(orderID string) error {
	_, err := sc.do("qr", http.MethodPost, "/api/v1/qr/upload", map[string]interface{}{
		"order_id": orderID,
	}, nil)
	return err
}

// sendNotification forwards a synthetic payment notification. An empty
// orderID produces an unmapped notification.
func (sc *simulationClient) sendNotification(orderID, payer string) error {
	bigText := "Payment received. Ref " + orderID
	if orderID == "" {
		bigText = "Payment received with no reference"
	}
	_, err := sc.do("notify", http.MethodPost, "/api/v1/notifications", map[string]interface{}{
		"title":   payer + " paid you ₹100.00",
		"text":    "You received a payment",
		"bigText": bigText,
	}, nil)
	return err
}

// readOrder fetches the public order projection
func (sc *simulationClient) readOrder(orderID string) error {
	_, err := sc.do("read", http.MethodGet, "/api/v1/orders/"+orderID, nil, nil)
	return err
}

// runFlow drives one order through create → QR → notification → read.
// A slice of the traffic replays the notification to exercise duplicate
// handling, and another slice sends unmapped payloads.
func (sc *simulationClient) runFlow() {
	orderID, err := sc.createOrder()
	if err != nil {
		log.Error().Err(err).Msg("create order failed")
		return
	}

	if err := sc.attachQR(orderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("attach QR failed")
		return
	}

	payer := payers[rand.Intn(len(payers))]
	switch n := rand.Intn(10); {
	case n < 7: // happy path
		_ = sc.sendNotification(orderID, payer)
	case n < 8: // duplicate delivery
		_ = sc.sendNotification(orderID, payer)
		_ = sc.sendNotification(orderID, payer)
	default: // unmapped
		_ = sc.sendNotification("", payer)
	}

	if err := sc.readOrder(orderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("read order failed")
	}
}

// printStats displays the performance statistics for all routes
func (sc *simulationClient) printStats() {
	fmt.Println("\nRoute Statistics:")
	fmt.Println("----------------------------------------")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("\n%s:\n", rs.name)
		fmt.Printf("  Calls:    %d (failures: %d)\n", rs.totalCalls, rs.failures)
		fmt.Printf("  Min:      %v\n", min)
		fmt.Printf("  Max:      %v\n", max)
		fmt.Printf("  Mean:     %v\n", mean)
		fmt.Printf("  Median:   %v\n", median)
		fmt.Printf("  P95:      %v\n", p95)
		fmt.Printf("  P99:      %v\n", p99)
	}
}

func main() {
	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise simulation client")
	}

	totalOrders := minOrders + rand.Intn(maxOrders-minOrders+1)
	log.Info().Int("orders", totalOrders).Int("workers", numWorkers).Msg("starting payment flow simulation")

	jobs := make(chan struct{}, totalOrders)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				sc.runFlow()
			}
		}()
	}

	for i := 0; i < totalOrders; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	log.Info().Msg("simulation complete")
	sc.printStats()
}
