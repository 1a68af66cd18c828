package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	shopv1 "github.com/vladislavdragonenkov/shop/api/shop/v1"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
)

const methodCreateOrder = "CreateOrder"

type config struct {
	addr        string
	requests    int
	concurrency int
	connections int
	timeout     time.Duration
	stock       int64
	quantity    int64
	price       string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// report — итог прогона. Oversold=true означает, что продано больше, чем было на складе.
type report struct {
	StartedAt         time.Time        `json:"started_at"`
	DurationSeconds   float64          `json:"duration_seconds"`
	ProductID         string           `json:"product_id"`
	InitialStock      int64            `json:"initial_stock"`
	RemainingStock    int64            `json:"remaining_stock"`
	Requests          int64            `json:"requests"`
	Succeeded         int64            `json:"succeeded"`
	InsufficientStock int64            `json:"insufficient_stock"`
	Failed            int64            `json:"failed"`
	Oversold          bool             `json:"oversold"`
	RPS               float64          `json:"rps"`
	Codes             map[string]int64 `json:"codes"`
	LatencyMs         latencySummary   `json:"latency_ms"`
}

type collector struct {
	mu           sync.Mutex
	succeeded    int64
	insufficient int64
	failed       int64
	codes        map[string]int64
	latencies    []float64
}

func newCollector() *collector {
	return &collector{codes: make(map[string]int64)}
}

func (c *collector) record(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := grpcCode(err)
	switch {
	case err == nil:
		c.succeeded++
	case isInsufficientStock(err):
		c.insufficient++
	default:
		c.failed++
	}
	c.codes[code.String()]++
	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	codesCopy := make(map[string]int64, len(c.codes))
	for code, count := range c.codes {
		codesCopy[code] = count
	}

	result := report{
		StartedAt:         startedAt.UTC(),
		DurationSeconds:   duration.Seconds(),
		Requests:          c.succeeded + c.insufficient + c.failed,
		Succeeded:         c.succeeded,
		InsufficientStock: c.insufficient,
		Failed:            c.failed,
		Codes:             codesCopy,
		LatencyMs:         buildLatencySummary(c.latencies),
	}
	if duration > 0 {
		result.RPS = float64(result.Requests) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var timeoutValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.requests, "requests", 200, "total CreateOrder calls")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 4, "number of gRPC client connections")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	fs.Int64Var(&cfg.stock, "stock", 50, "initial stock of the contended product")
	fs.Int64Var(&cfg.quantity, "quantity", 1, "units requested by every order")
	fs.StringVar(&cfg.price, "price", "9.99", "product price")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	if cfg.requests <= 0 {
		return cfg, errors.New("requests must be > 0")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.stock < 0 {
		return cfg, errors.New("stock must be >= 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(cfg.price))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	if price.IsNegative() {
		return cfg, errors.New("price must be >= 0")
	}
	cfg.price = price.StringFixed(2)

	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]shopv1.ShopServiceClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, shopv1.NewShopServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := run(context.Background(), clients, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Oversold || result.Failed > 0 {
		os.Exit(1)
	}
}

// run создаёт клиента и товар с ограниченным остатком, затем параллельно
// отправляет CreateOrder и сверяет итоговый остаток с числом успешных заказов.
func run(ctx context.Context, clients []shopv1.ShopServiceClient, cfg config) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("at least one client is required")
	}
	runID := uuid.NewString()
	seedClient := clients[0]

	customer, err := seedCustomer(ctx, seedClient, cfg.timeout, runID)
	if err != nil {
		return report{}, err
	}
	product, err := seedProduct(ctx, seedClient, cfg, runID)
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	startedAt := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < cfg.requests; i++ {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobs <- i:
			}
		}
		return nil
	})
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		client := clients[workerID%len(clients)]
		g.Go(func() error {
			for range jobs {
				callCreateOrder(gctx, client, cfg.timeout, &shopv1.CreateOrderRequest{
					CustomerId: customer.Id,
					Items:      []*shopv1.OrderLine{{ProductId: product.Id, Quantity: cfg.quantity}},
				}, col)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.ProductID = product.Id
	result.InitialStock = cfg.stock

	remaining, err := fetchStock(ctx, seedClient, cfg.timeout, product.Id)
	if err != nil {
		return report{}, err
	}
	result.RemainingStock = remaining
	sold := result.Succeeded * cfg.quantity
	result.Oversold = remaining < 0 || sold > cfg.stock || cfg.stock-sold != remaining

	return result, nil
}

func seedCustomer(ctx context.Context, client shopv1.ShopServiceClient, timeout time.Duration, runID string) (*shopv1.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.CreateCustomer(ctx, &shopv1.CreateCustomerRequest{
		Name:  "Load Test " + runID,
		Email: fmt.Sprintf("loadtest+%s@example.com", runID),
	})
	if err != nil {
		return nil, fmt.Errorf("seed customer: %w", err)
	}
	if resp.Customer == nil {
		return nil, errors.New("seed customer: empty response")
	}
	return resp.Customer, nil
}

func seedProduct(ctx context.Context, client shopv1.ShopServiceClient, cfg config, runID string) (*shopv1.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := client.CreateProduct(ctx, &shopv1.CreateProductRequest{
		Name:     "loadtest-" + runID,
		Price:    cfg.price,
		Quantity: cfg.stock,
	})
	if err != nil {
		return nil, fmt.Errorf("seed product: %w", err)
	}
	if resp.Product == nil {
		return nil, errors.New("seed product: empty response")
	}
	return resp.Product, nil
}

func fetchStock(ctx context.Context, client shopv1.ShopServiceClient, timeout time.Duration, productID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.GetProduct(ctx, &shopv1.GetProductRequest{Id: productID})
	if err != nil {
		return 0, fmt.Errorf("read remaining stock: %w", err)
	}
	if resp.Product == nil {
		return 0, errors.New("read remaining stock: empty response")
	}
	return resp.Product.Quantity, nil
}

func callCreateOrder(
	ctx context.Context,
	client shopv1.ShopServiceClient,
	timeout time.Duration,
	req *shopv1.CreateOrderRequest,
	col *collector,
) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := client.CreateOrder(ctx, req)
	col.record(time.Since(start), err)
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func isInsufficientStock(err error) bool {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.FailedPrecondition {
		return false
	}
	info, ok := grpcsvc.ErrorInfoFromStatus(st)
	return ok && info.GetReason() == string(domain.KindInsufficientStock)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "product=%s stock: initial=%d remaining=%d oversold=%t\n",
		result.ProductID, result.InitialStock, result.RemainingStock, result.Oversold)
	_, _ = fmt.Fprintf(w, "requests=%d succeeded=%d insufficient_stock=%d failed=%d\n",
		result.Requests, result.Succeeded, result.InsufficientStock, result.Failed)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "%s latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		methodCreateOrder,
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)

	codeNames := make([]string, 0, len(result.Codes))
	for name := range result.Codes {
		codeNames = append(codeNames, name)
	}
	sort.Strings(codeNames)
	for _, name := range codeNames {
		_, _ = fmt.Fprintf(w, "code %s: %d\n", name, result.Codes[name])
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
