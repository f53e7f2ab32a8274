package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersPushed — ордера, ушедшие на биржу, по типу и исходу.
	OrdersPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_bot",
		Name:      "orders_pushed_total",
		Help:      "Orders sent to the exchange by kind and outcome.",
	}, []string{"kind", "outcome"})

	// ExchangeFailures — отказы биржевых вызовов по классу.
	ExchangeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_bot",
		Name:      "exchange_failures_total",
		Help:      "Exchange call failures by classified kind.",
	}, []string{"kind"})

	// CommandsDropped — команды, выброшенные диспетчером при забитой партиции.
	CommandsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crypto_bot",
		Name:      "commands_dropped_total",
		Help:      "Push commands dropped because the partition buffer was full.",
	}, []string{"command"})
)

func Handler() http.Handler { return promhttp.Handler() }
