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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numAccounts   = 5
	minOrders     = 20
	maxOrders     = 120
	numWorkers    = 5
	initialCash   = 100000.0
	serverAddress = "http://localhost:8080"

	apiKey    = "scheduler-api-key"
	apiSecret = "scheduler-api-secret"
)

var (
	assets = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides  = []string{"BUY", "SELL"}
	// Rough reference prices the quote feed wanders around.
	basePrices = map[string]float64{
		"AAPL":  190,
		"GOOGL": 160,
		"MSFT":  420,
		"AMZN":  180,
		"META":  500,
	}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
}

// calculate computes min, max, mean, median, p95 and p99 from the recorded
// durations.
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

// simulationClient handles HTTP communication with the paper-trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient authenticates against the API and prepares performance
// tracking.
func newSimulationClient() (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 30 * time.Second},
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"account": {name: "Create Account"},
			"quote":   {name: "Push Quote"},
			"create":  {name: "Create Order"},
			"process": {name: "Process Orders"},
			"cleanup": {name: "Cleanup Orders"},
			"stats":   {name: "Engine Stats"},
		},
	}

	if err := sc.authenticate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *simulationClient) authenticate() error {
	body := map[string]string{"api_key": apiKey, "api_secret": apiSecret}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := sc.doRequest("auth", http.MethodPost, "/api/v1/auth/token", body, nil, &result); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	sc.authToken = result.Data.Token
	return nil
}

// doRequest performs a timed API call and records its duration under route.
func (sc *simulationClient) doRequest(route, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := sc.client.Do(req)
	elapsed := time.Since(start)

	sc.mu.Lock()
	rs := sc.stats[route]
	rs.addDuration(elapsed)
	if err != nil || resp.StatusCode >= 400 {
		rs.failures++
	}
	sc.mu.Unlock()

	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, data)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (sc *simulationClient) createAccount() (string, error) {
	var result struct {
		Data struct {
			AccountID string `json:"account_id"`
		} `json:"data"`
	}
	body := map[string]float64{"initial_cash": initialCash}
	if err := sc.doRequest("account", http.MethodPost, "/api/v1/accounts", body, nil, &result); err != nil {
		return "", err
	}
	return result.Data.AccountID, nil
}

func (sc *simulationClient) pushQuote(asset string) error {
	base := basePrices[asset]
	price := base * (1 + (rand.Float64()*0.04 - 0.02)) // ±2% walk
	body := map[string]interface{}{
		"asset_id": asset,
		"price":    math.Round(price*100) / 100,
	}
	return sc.doRequest("quote", http.MethodPut, "/api/v1/internal/quotes", body, nil, nil)
}

func (sc *simulationClient) createOrder(accountID string) error {
	asset := assets[rand.Intn(len(assets))]
	side := sides[rand.Intn(len(sides))]
	quantity := float64(rand.Intn(20) + 1)

	body := map[string]interface{}{
		"account_id": accountID,
		"asset_id":   asset,
		"side":       side,
		"kind":       "MARKET",
		"quantity":   quantity,
	}

	// Half the orders are limits near the reference price, so some rest on
	// the backlog until the quote walk crosses them.
	if rand.Intn(2) == 0 {
		body["kind"] = "LIMIT"
		limit := basePrices[asset] * (1 + (rand.Float64()*0.06 - 0.03))
		body["limit_price"] = math.Round(limit*100) / 100
	}

	headers := map[string]string{"Idempotency-Key": uuid.New().String()}
	return sc.doRequest("create", http.MethodPost, "/api/v1/orders", body, headers, nil)
}

func (sc *simulationClient) processOrders() (map[string]interface{}, error) {
	var result struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := sc.doRequest("process", http.MethodPost, "/api/v1/internal/process", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (sc *simulationClient) cleanupOrders() error {
	return sc.doRequest("cleanup", http.MethodPost, "/api/v1/internal/cleanup", nil, nil, nil)
}

func (sc *simulationClient) engineStats() (map[string]interface{}, error) {
	var result struct {
		Data map[string]interface{} `json:"data"`
	}
	if err := sc.doRequest("stats", http.MethodGet, "/api/v1/internal/stats", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func main() {
	log.Info().Msg("starting paper-trading simulation")

	sc, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize simulation client")
	}

	// Seed accounts and the quote cache.
	accounts := make([]string, 0, numAccounts)
	for i := 0; i < numAccounts; i++ {
		accountID, err := sc.createAccount()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create account")
		}
		accounts = append(accounts, accountID)
	}
	for _, asset := range assets {
		if err := sc.pushQuote(asset); err != nil {
			log.Fatal().Err(err).Str("asset", asset).Msg("failed to push quote")
		}
	}

	numOrders := rand.Intn(maxOrders-minOrders+1) + minOrders
	log.Info().
		Int("accounts", len(accounts)).
		Int("orders", numOrders).
		Int("workers", numWorkers).
		Msg("placing orders")

	// Place orders concurrently while the engine is also being triggered, to
	// exercise overlapping invocations.
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				account := accounts[rand.Intn(len(accounts))]
				if err := sc.createOrder(account); err != nil {
					log.Warn().Err(err).Msg("order placement failed")
				}
			}
		}()
	}

	// Two concurrent trigger loops: quote movement plus processing passes.
	done := make(chan struct{})
	var triggers sync.WaitGroup
	for i := 0; i < 2; i++ {
		triggers.Add(1)
		go func() {
			defer triggers.Done()
			for {
				select {
				case <-done:
					return
				case <-time.After(500 * time.Millisecond):
					for _, asset := range assets {
						if err := sc.pushQuote(asset); err != nil {
							log.Warn().Err(err).Msg("quote push failed")
						}
					}
					if result, err := sc.processOrders(); err != nil {
						log.Warn().Err(err).Msg("processing pass failed")
					} else {
						log.Info().Interface("result", result).Msg("processing pass")
					}
				}
			}
		}()
	}

	for i := 0; i < numOrders; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// A few final passes to drain what the quote walk has made eligible.
	for i := 0; i < 5; i++ {
		for _, asset := range assets {
			_ = sc.pushQuote(asset)
		}
		if _, err := sc.processOrders(); err != nil {
			log.Warn().Err(err).Msg("final processing pass failed")
		}
		time.Sleep(250 * time.Millisecond)
	}
	close(done)
	triggers.Wait()

	if err := sc.cleanupOrders(); err != nil {
		log.Warn().Err(err).Msg("cleanup failed")
	}

	stats, err := sc.engineStats()
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch engine stats")
	} else {
		log.Info().Interface("stats", stats).Msg("final engine stats")
	}

	printReport(sc)
	log.Info().Msg("simulation complete")
}

// printReport prints latency statistics per route.
func printReport(sc *simulationClient) {
	fmt.Println("\n=== Route performance ===")
	order := []string{"auth", "account", "quote", "create", "process", "cleanup", "stats"}
	for _, key := range order {
		rs := sc.stats[key]
		if len(rs.durations) == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-16s calls=%-4d failures=%-3d min=%-10s max=%-10s mean=%-10s median=%-10s p95=%-10s p99=%s\n",
			rs.name, len(rs.durations), rs.failures, min, max, mean, median, p95, p99)
	}
}
