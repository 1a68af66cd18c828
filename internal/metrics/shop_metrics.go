package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics содержит бизнес-метрики магазина. Методы безопасны для nil-получателя.
type ShopMetrics struct {
	ordersCreated prometheus.Counter
	orderFailures *prometheus.CounterVec
	orderDuration prometheus.Histogram
	orderItems    prometheus.Histogram
	unitsSold     prometheus.Counter

	productsCreated  prometheus.Counter
	customersCreated prometheus.Counter

	inFlightOrders prometheus.Gauge
}

// NewShopMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders committed",
		}),
		orderFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_failures_total",
			Help: "Total number of rejected or failed order placements by error kind",
		}, []string{"kind"}),
		orderDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_duration_seconds",
			Help:    "Duration of the order placement unit of work in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		orderItems: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_items",
			Help:    "Number of line items per committed order",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
		}),
		unitsSold: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_units_sold_total",
			Help: "Total number of product units deducted from stock",
		}),
		productsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_products_created_total",
			Help: "Total number of products added to the catalog",
		}),
		customersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_customers_created_total",
			Help: "Total number of customers registered",
		}),
		inFlightOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_orders_in_flight",
			Help: "Number of order placements currently in progress",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderStarted увеличивает количество оформляемых заказов.
func (m *ShopMetrics) RecordOrderStarted() {
	if m == nil {
		return
	}
	m.inFlightOrders.Inc()
}

// RecordOrderFinished фиксирует завершение оформления: успех или отказ по типу ошибки.
// Пустой kind означает успешный заказ.
func (m *ShopMetrics) RecordOrderFinished(kind string, items int, units int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlightOrders.Dec()
	m.orderDuration.Observe(duration.Seconds())

	if kind != "" {
		m.orderFailures.WithLabelValues(kind).Inc()
		return
	}
	m.ordersCreated.Inc()
	m.orderItems.Observe(float64(items))
	m.unitsSold.Add(float64(units))
}

// RecordProductCreated увеличивает счётчик созданных товаров.
func (m *ShopMetrics) RecordProductCreated() {
	if m == nil {
		return
	}
	m.productsCreated.Inc()
}

// RecordCustomerCreated увеличивает счётчик зарегистрированных клиентов.
func (m *ShopMetrics) RecordCustomerCreated() {
	if m == nil {
		return
	}
	m.customersCreated.Inc()
}
