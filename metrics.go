package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chronos-tachyon/verserve/internal/constants"
)

const (
	readResultOK    = "ok"
	readResultError = "error"
)

var gMetrics = map[string]*Metrics{
	constants.SubsystemHTTP: NewMetrics(constants.SubsystemHTTP),
	constants.SubsystemProm: NewMetrics(constants.SubsystemProm),
}

func init() {
	for _, metrics := range gMetrics {
		metrics.MustRegister(prometheus.DefaultRegisterer)
	}
}

// type Metrics {{{

type Metrics struct {
	PanicCount           prometheus.Counter
	RequestCountByMethod *prometheus.CounterVec
	ResponseCountByCode  *prometheus.CounterVec
	ResponseSize         prometheus.Histogram
	ResponseDuration     prometheus.Histogram
	VersionReadsByResult *prometheus.CounterVec
}

func NewMetrics(subsystem string) *Metrics {
	m := new(Metrics)

	m.PanicCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "verserve",
			Subsystem: subsystem,
			Name:      "panics_total",
			Help:      "the number of HTTP requests whose handlers paniced",
		},
	)

	m.RequestCountByMethod = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verserve",
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "the number of incoming HTTP requests",
		},
		[]string{"method"},
	)

	m.ResponseCountByCode = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "verserve",
			Subsystem: subsystem,
			Name:      "responses_total",
			Help:      "the number of outgoing HTTP responses",
		},
		[]string{"code"},
	)

	m.ResponseSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "verserve",
			Subsystem: subsystem,
			Name:      "response_size_bytes",
			Help:      "the size of the outgoing HTTP response",
			Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
		},
	)

	m.ResponseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "verserve",
			Subsystem: subsystem,
			Name:      "response_duration_seconds",
			Help:      "the duration of the HTTP request lifetime",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 10, 6),
		},
	)

	if subsystem == constants.SubsystemHTTP {
		m.VersionReadsByResult = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verserve",
				Subsystem: subsystem,
				Name:      "version_reads_total",
				Help:      "the number of attempts to read the version file",
			},
			[]string{"result"},
		)
		m.VersionReadsByResult.WithLabelValues(readResultOK)
		m.VersionReadsByResult.WithLabelValues(readResultError)
	}

	for _, method := range []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
	} {
		m.RequestCountByMethod.WithLabelValues(simplifyHTTPMethod(method))
	}

	for _, code := range []int{
		http.StatusOK,
		http.StatusInternalServerError,
	} {
		m.ResponseCountByCode.WithLabelValues(simplifyHTTPStatusCode(code))
	}

	return m
}

func (m *Metrics) All() []prometheus.Collector {
	out := make([]prometheus.Collector, 0, 6)
	out = append(
		out,
		m.PanicCount,
		m.RequestCountByMethod,
		m.ResponseCountByCode,
		m.ResponseSize,
		m.ResponseDuration,
	)
	if m.VersionReadsByResult != nil {
		out = append(out, m.VersionReadsByResult)
	}
	return out
}

func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.All()...)
}

// ObserveVersionRead counts one read of the version file.
func (m *Metrics) ObserveVersionRead(err error) {
	if m == nil || m.VersionReadsByResult == nil {
		return
	}
	result := readResultOK
	if err != nil {
		result = readResultError
	}
	m.VersionReadsByResult.WithLabelValues(result).Inc()
}

// }}}
