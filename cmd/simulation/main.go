package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/auth"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/exchange"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/execution"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/numeric"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/trading"
	"github.com/remus-ciprian-cotunoaea/investment-management-system-sub000/internal/types"
)

const (
	minOrders  = 15
	maxOrders  = 150
	numWorkers = 5
)

var (
	instruments = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META"}
	sides       = []types.Side{types.SideBuy, types.SideSell}
)

func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// routeStats tracks latency of one API endpoint.
type routeStats struct {
	mu         sync.Mutex
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate returns min, max, mean, median, p95 and p99.
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sorted := append([]time.Duration(nil), rs.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean = sum / time.Duration(len(sorted))
	median = sorted[len(sorted)/2]

	p95 = sorted[int(math.Ceil(float64(len(sorted))*0.95))-1]
	p99 = sorted[int(math.Ceil(float64(len(sorted))*0.99))-1]
	return
}

// simulationClient drives the order, execution and position APIs over HTTP.
type simulationClient struct {
	baseURL      string
	positionsURL string
	authToken    string
	client       *http.Client
	stats        map[string]*routeStats
}

func newSimulationClient(baseURL, positionsURL string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL:      baseURL,
		positionsURL: positionsURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"create":   {name: "Create Order"},
			"execute":  {name: "Execute Fill"},
			"get":      {name: "Get Order"},
			"position": {name: "Get Position"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token
	return sc, nil
}

// call sends body as JSON and decodes the data field of the envelope into out.
func (sc *simulationClient) call(stat, method, url string, body any, idempotent bool, out any) (err error) {
	start := time.Now()
	defer func() { sc.stats[stat].record(time.Since(start), err != nil) }()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}
	if idempotent {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("url", url).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, url, resp.StatusCode, string(respBody))
	}

	envelope := struct {
		Success bool `json:"success"`
		Data    any  `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

func (sc *simulationClient) authenticate() (string, error) {
	var token auth.TokenResponse
	err := sc.call("auth", http.MethodPost, sc.baseURL+"/api/v1/auth/token",
		auth.Credentials{APIKey: auth.TestAPIKey, APISecret: auth.TestAPISecret}, false, &token)
	if err != nil {
		return "", err
	}
	return token.Token, nil
}

func (sc *simulationClient) createOrder(req trading.OrderRequest) (*types.OrderResponse, error) {
	var order types.OrderResponse
	if err := sc.call("create", http.MethodPost, sc.baseURL+"/api/v1/orders", req, true, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, fmt.Errorf("no order ID in response")
	}
	return &order, nil
}

func (sc *simulationClient) executeFill(order *types.OrderResponse, fill exchange.Fill) (*types.TradeResponse, error) {
	fees := numeric.FormatPrice(fill.Fees)
	executedAt := fill.ExecutedAt
	body := execution.ExecutionBody{
		OrderID:    order.OrderID,
		AccountID:  order.AccountID,
		Quantity:   numeric.FormatQuantity(fill.Quantity),
		Price:      numeric.FormatPrice(fill.Price),
		Fees:       &fees,
		ExecutedAt: &executedAt,
	}
	var trade types.TradeResponse
	if err := sc.call("execute", http.MethodPost, sc.baseURL+"/api/v1/internal/executions", body, true, &trade); err != nil {
		return nil, err
	}
	return &trade, nil
}

func (sc *simulationClient) getOrder(orderID string) (*types.OrderResponse, error) {
	var order types.OrderResponse
	if err := sc.call("get", http.MethodGet, sc.baseURL+"/api/v1/orders/"+orderID, nil, false, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (sc *simulationClient) getPosition(instrumentID string) (*types.PositionResponse, error) {
	var position types.PositionResponse
	url := sc.positionsURL + "/api/v1/positions/instrument/" + instrumentID
	if err := sc.call("position", http.MethodGet, url, nil, false, &position); err != nil {
		return nil, err
	}
	return &position, nil
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	keys := make([]string, 0, len(sc.stats))
	for k := range sc.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stats := sc.stats[k]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

type summary struct {
	mu              sync.Mutex
	TotalOrders     int
	Filled          int
	PartiallyFilled int
	Trades          int
	FailedOrders    int
	FailedFills     int
	Notional        decimal.Decimal
	Instruments     map[string]int
}

// createOrders places random market and limit orders, sending each created
// order to out.
func createOrders(workerID, numOrders int, sc *simulationClient, out chan<- *types.OrderResponse) {
	for i := 0; i < numOrders; i++ {
		price := decimal.NewFromInt(int64(rand.Intn(1000) + 100))
		req := trading.OrderRequest{
			InstrumentID: instruments[rand.Intn(len(instruments))],
			Side:         string(sides[rand.Intn(len(sides))]),
			OrderType:    string(types.OrderTypeMarket),
			Quantity:     decimal.NewFromInt(int64(rand.Intn(100) + 1)).String(),
			Note:         fmt.Sprintf("simulation worker %d", workerID),
		}
		if rand.Intn(2) == 0 {
			limit := numeric.FormatPrice(price)
			req.OrderType = string(types.OrderTypeLimit)
			req.LimitPrice = &limit
		}

		order, err := sc.createOrder(req)
		if err != nil {
			log.Error().Err(err).Int("worker_id", workerID).Str("instrument_id", req.InstrumentID).Msg("Failed to create order")
			continue
		}
		out <- order
		log.Info().
			Int("worker_id", workerID).
			Str("order_id", order.OrderID).
			Str("instrument_id", order.InstrumentID).
			Str("side", string(order.Side)).
			Str("quantity", order.Quantity).
			Msg("Order created")

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// fillOrder routes an order through the simulated venues and reports every
// fill as an execution.
func fillOrder(ctx context.Context, sc *simulationClient, router *exchange.Router, order *types.OrderResponse, stats *summary) {
	qty, err := numeric.Parse(order.Quantity)
	if err != nil {
		return
	}
	reference := decimal.NewFromInt(int64(rand.Intn(1000) + 100))
	if order.LimitPrice != nil {
		if p, err := numeric.Parse(*order.LimitPrice); err == nil {
			reference = p
		}
	}

	fills, err := router.Route(ctx, exchange.Ticket{
		OrderID:        order.OrderID,
		InstrumentID:   order.InstrumentID,
		Side:           order.Side,
		Quantity:       qty,
		ReferencePrice: reference,
	})
	if err != nil {
		log.Warn().Err(err).Str("order_id", order.OrderID).Msg("No venue filled the order")
		stats.mu.Lock()
		stats.FailedOrders++
		stats.mu.Unlock()
		return
	}

	for _, fill := range fills {
		trade, err := sc.executeFill(order, fill)
		stats.mu.Lock()
		if err != nil {
			stats.FailedFills++
		} else {
			stats.Trades++
			stats.Notional = stats.Notional.Add(fill.Quantity.Mul(fill.Price))
		}
		stats.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to record fill")
			continue
		}
		log.Info().
			Str("order_id", order.OrderID).
			Str("trade_id", trade.TradeID).
			Str("venue_id", fill.VenueID).
			Str("price", trade.Price).
			Str("quantity", trade.Quantity).
			Msg("Fill recorded")
	}

	current, err := sc.getOrder(order.OrderID)
	if err != nil {
		return
	}
	stats.mu.Lock()
	switch current.Status {
	case types.OrderStatusFilled:
		stats.Filled++
	case types.OrderStatusPartiallyFilled:
		stats.PartiallyFilled++
	}
	stats.Instruments[current.InstrumentID]++
	stats.mu.Unlock()
}

func main() {
	baseURL := envOr("SIM_SERVER_URL", "http://localhost:8080")
	positionsURL := envOr("SIM_POSITIONS_URL", baseURL)

	sc, err := newSimulationClient(baseURL, positionsURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	ctx := context.Background()
	router := exchange.NewRouter(exchange.DefaultVenues(), 3, nil)

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")
	start := time.Now()

	ordersChan := make(chan *types.OrderResponse, targetOrders)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			createOrders(workerID, targetOrders/numWorkers, sc, ordersChan)
		}(i)
	}
	wg.Wait()
	close(ordersChan)

	stats := &summary{Notional: decimal.Zero, Instruments: make(map[string]int)}
	var orders []*types.OrderResponse
	for order := range ordersChan {
		orders = append(orders, order)
	}
	stats.TotalOrders = len(orders)
	log.Info().Int("orders_created", len(orders)).Msg("All orders created")

	work := make(chan *types.OrderResponse)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range work {
				fillOrder(ctx, sc, router, order, stats)
			}
		}()
	}
	for _, order := range orders {
		work <- order
	}
	close(work)
	wg.Wait()

	// Positions are eventually consistent; give the reconciler a moment.
	time.Sleep(time.Second)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("POSITIONS")
	fmt.Println(strings.Repeat("=", 80))
	for _, instrument := range instruments {
		position, err := sc.getPosition(instrument)
		if err != nil {
			fmt.Printf("%-6s: no position\n", instrument)
			continue
		}
		avg := "-"
		if position.AvgCost != nil {
			avg = *position.AvgCost
		}
		fmt.Printf("%-6s: quantity %s avg_cost %s\n", instrument, position.Quantity, avg)
	}

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Order Statistics
------------------
Total Orders:      %d
Filled:            %d
Partially Filled:  %d
Trades:            %d
Unfilled Orders:   %d
Failed Fills:      %d
Notional:          %s
Duration:          %v

Instrument Distribution
--------------------
`, stats.TotalOrders, stats.Filled, stats.PartiallyFilled, stats.Trades,
		stats.FailedOrders, stats.FailedFills, numeric.FormatPrice(stats.Notional), duration.Round(time.Millisecond))

	maxCount := 0
	for _, count := range stats.Instruments {
		if count > maxCount {
			maxCount = count
		}
	}
	for _, instrument := range instruments {
		count := stats.Instruments[instrument]
		barLength := 0
		if maxCount > 0 {
			barLength = int(float64(count) / float64(maxCount) * 20)
		}
		fmt.Printf("%-6s: %s (%d)\n", instrument, strings.Repeat("#", barLength), count)
	}
	fmt.Println("\n" + strings.Repeat("=", 80))

	log.Info().
		Int("total_orders", stats.TotalOrders).
		Int("filled", stats.Filled).
		Int("trades", stats.Trades).
		Dur("duration", duration).
		Msg("Simulation completed")

	sc.printPerformanceStats()
}
