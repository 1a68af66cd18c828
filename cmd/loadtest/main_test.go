package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	shopv1 "github.com/vladislavdragonenkov/shop/api/shop/v1"
	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/customer"
	grpcsvc "github.com/vladislavdragonenkov/shop/internal/service/grpc"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func newBufconnClients(t *testing.T, count int) []shopv1.ShopServiceClient {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	store := memory.NewStore()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	entry := logger.WithField("component", "loadtest-test")

	server := grpc.NewServer()
	shopv1.RegisterShopServiceServer(server, grpcsvc.NewShopService(
		customer.NewService(store, customer.WithLogger(entry)),
		catalog.NewService(store, store.Products(), catalog.WithLogger(entry)),
		order.NewService(store, store.Orders(), order.WithLogger(entry)),
		entry,
	))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return listener.Dial() }
	clients := make([]shopv1.ShopServiceClient, 0, count)
	for i := 0; i < count; i++ {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(dialer),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		clients = append(clients, shopv1.NewShopServiceClient(conn))
	}
	return clients
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-addr=127.0.0.1:50051",
		"-requests=12",
		"-concurrency=3",
		"-connections=2",
		"-timeout=2s",
		"-stock=7",
		"-quantity=2",
		"-price=4.5",
		"-output=out.json",
	})

	require.NoError(t, err)
	assert.Equal(t, config{
		addr:        "127.0.0.1:50051",
		requests:    12,
		concurrency: 3,
		connections: 2,
		timeout:     2 * time.Second,
		stock:       7,
		quantity:    2,
		price:       "4.50",
		outputPath:  "out.json",
	}, cfg)
}

func TestParseConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "invalid timeout", args: []string{"-timeout=bad"}, wantErr: "parse timeout"},
		{name: "zero timeout", args: []string{"-timeout=0s"}, wantErr: "timeout must be > 0"},
		{name: "zero requests", args: []string{"-requests=0"}, wantErr: "requests must be > 0"},
		{name: "zero concurrency", args: []string{"-concurrency=0"}, wantErr: "concurrency must be > 0"},
		{name: "zero connections", args: []string{"-connections=0"}, wantErr: "connections must be > 0"},
		{name: "negative stock", args: []string{"-stock=-1"}, wantErr: "stock must be >= 0"},
		{name: "zero quantity", args: []string{"-quantity=0"}, wantErr: "quantity must be > 0"},
		{name: "bad price", args: []string{"-price=abc"}, wantErr: "parse price"},
		{name: "negative price", args: []string{"-price=-1"}, wantErr: "price must be >= 0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseConfig(tc.args)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestRun_NoOversellUnderContention(t *testing.T) {
	clients := newBufconnClients(t, 2)
	cfg := config{
		requests:    30,
		concurrency: 8,
		connections: 2,
		timeout:     5 * time.Second,
		stock:       10,
		quantity:    1,
		price:       "1.00",
	}

	result, err := run(context.Background(), clients, cfg)

	require.NoError(t, err)
	assert.Equal(t, int64(30), result.Requests)
	assert.Equal(t, int64(10), result.Succeeded)
	assert.Equal(t, int64(20), result.InsufficientStock)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.RemainingStock)
	assert.False(t, result.Oversold)
	assert.Equal(t, int64(10), result.Codes[codes.OK.String()])
	assert.Equal(t, int64(20), result.Codes[codes.FailedPrecondition.String()])
}

func TestRun_MultiUnitOrders(t *testing.T) {
	clients := newBufconnClients(t, 1)
	cfg := config{
		requests:    10,
		concurrency: 4,
		timeout:     5 * time.Second,
		stock:       7,
		quantity:    3,
		price:       "2.00",
	}

	result, err := run(context.Background(), clients, cfg)

	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Succeeded)
	assert.Equal(t, int64(1), result.RemainingStock)
	assert.False(t, result.Oversold)
}

type failingSeedClient struct {
	shopv1.ShopServiceClient
}

func (failingSeedClient) CreateCustomer(context.Context, *shopv1.CreateCustomerRequest, ...grpc.CallOption) (*shopv1.CreateCustomerResponse, error) {
	return nil, status.Error(codes.Unavailable, "down")
}

func TestRun_SeedFailure(t *testing.T) {
	_, err := run(context.Background(), []shopv1.ShopServiceClient{failingSeedClient{}}, config{timeout: time.Second})
	assert.ErrorContains(t, err, "seed customer")

	_, err = run(context.Background(), nil, config{})
	assert.Error(t, err)
}

func TestCollectorClassifiesErrors(t *testing.T) {
	shortage, err := status.New(codes.FailedPrecondition, "insufficient stock").WithDetails(&errdetails.ErrorInfo{
		Reason: string(domain.KindInsufficientStock),
		Domain: grpcsvc.ErrorDomain,
	})
	require.NoError(t, err)

	col := newCollector()
	col.record(time.Millisecond, nil)
	col.record(2*time.Millisecond, shortage.Err())
	col.record(3*time.Millisecond, status.Error(codes.FailedPrecondition, "no details"))
	col.record(4*time.Millisecond, errors.New("transport broken"))

	result := col.buildReport(time.Now(), time.Second)
	assert.Equal(t, int64(4), result.Requests)
	assert.Equal(t, int64(1), result.Succeeded)
	assert.Equal(t, int64(1), result.InsufficientStock)
	assert.Equal(t, int64(2), result.Failed)
	assert.Equal(t, int64(2), result.Codes[codes.FailedPrecondition.String()])
	assert.InDelta(t, 4.0, result.RPS, 1e-9)
	assert.InDelta(t, 1.0, result.LatencyMs.Min, 1e-9)
	assert.InDelta(t, 4.0, result.LatencyMs.Max, 1e-9)
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 5.0, percentile([]float64{5}, 99))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)
	assert.InDelta(t, 4.0, percentile([]float64{1, 2, 3, 4}, 100), 1e-9)

	summary := buildLatencySummary([]float64{3, 1, 2})
	assert.Equal(t, latencySummary{Min: 1, Max: 3, Avg: 2, P50: 2, P95: 2.9, P99: 2.98}, roundSummary(summary))
}

func roundSummary(s latencySummary) latencySummary {
	round := func(v float64) float64 { return float64(int64(v*100+0.5)) / 100 }
	return latencySummary{
		Min: round(s.Min), Max: round(s.Max), Avg: round(s.Avg),
		P50: round(s.P50), P95: round(s.P95), P99: round(s.P99),
	}
}

func TestWriteJSONReport(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, writeJSONReport("report.json", report{Requests: 3, Succeeded: 2}))

	data, err := os.ReadFile(filepath.Join(".", "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(3), decoded.Requests)
	assert.Equal(t, int64(2), decoded.Succeeded)

	assert.ErrorContains(t, writeJSONReport(".", report{}), "must point to a file")
	assert.ErrorContains(t, writeJSONReport("../escape.json", report{}), "inside current directory")
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, report{
		ProductID:         "p-1",
		InitialStock:      10,
		Requests:          12,
		Succeeded:         10,
		InsufficientStock: 2,
		Codes:             map[string]int64{"OK": 10, "FailedPrecondition": 2},
	})

	text := out.String()
	assert.Contains(t, text, "product=p-1 stock: initial=10 remaining=0 oversold=false")
	assert.Contains(t, text, "requests=12 succeeded=10 insufficient_stock=2 failed=0")
	assert.Contains(t, text, "code FailedPrecondition: 2")
}
