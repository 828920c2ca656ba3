package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const PushJob string = "openbuildings_import"

// Collector bundles the Prometheus metrics describing import runs.
type Collector struct {
	gatherer prometheus.Gatherer

	Rows     *prometheus.CounterVec
	Skipped  *prometheus.CounterVec
	Shards   *prometheus.CounterVec
	Batches  *prometheus.CounterVec
	Duration *prometheus.GaugeVec
	LastRun  *prometheus.GaugeVec
}

// NewCollector registers import metrics against reg, defaulting to the global Prometheus
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	gatherer := prometheus.DefaultGatherer

	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	rows, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openbuildings_rows_total",
		Help: "Rows read from Open Buildings shards, labeled by country and outcome (processed, inserted, duplicate, skipped).",
	}, []string{"country", "outcome"}))

	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openbuildings_rows_skipped_total",
		Help: "Skipped rows, labeled by country and reason.",
	}, []string{"country", "reason"}))

	if err != nil {
		return nil, err
	}

	shards, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openbuildings_shards_total",
		Help: "Shards considered, labeled by country and outcome (downloaded, present, absent, failed, corrupt).",
	}, []string{"country", "outcome"}))

	if err != nil {
		return nil, err
	}

	batches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openbuildings_batches_total",
		Help: "Loaded batches, labeled by country and final state (committed, committed_partial).",
	}, []string{"country", "state"}))

	if err != nil {
		return nil, err
	}

	duration, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "openbuildings_run_duration_seconds",
		Help: "Wall clock duration of the most recent import run.",
	}, []string{"country"}))

	if err != nil {
		return nil, err
	}

	last_run, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "openbuildings_last_run_timestamp_seconds",
		Help: "Unix time the most recent import run finished.",
	}, []string{"country"}))

	if err != nil {
		return nil, err
	}

	c := &Collector{
		gatherer: gatherer,
		Rows:     rows,
		Skipped:  skipped,
		Shards:   shards,
		Batches:  batches,
		Duration: duration,
		LastRun:  last_run,
	}

	return c, nil
}

// Observe records the outcome of a finished run.
func (c *Collector) Observe(r *Report) {

	if c == nil || r == nil {
		return
	}

	code := r.Country.Code

	for _, s := range r.Shards {
		c.Shards.WithLabelValues(code, s.Outcome()).Inc()
	}

	c.Rows.WithLabelValues(code, "processed").Add(float64(r.Totals.Processed))
	c.Rows.WithLabelValues(code, "inserted").Add(float64(r.Totals.Inserted))
	c.Rows.WithLabelValues(code, "duplicate").Add(float64(r.Totals.Duplicates))
	c.Rows.WithLabelValues(code, "skipped").Add(float64(r.Totals.Skipped))

	for reason, n := range r.Totals.SkippedByReason {
		c.Skipped.WithLabelValues(code, reason.String()).Add(float64(n))
	}

	committed := r.Totals.Batches - r.Totals.FallbackBatches

	c.Batches.WithLabelValues(code, "committed").Add(float64(committed))
	c.Batches.WithLabelValues(code, "committed_partial").Add(float64(r.Totals.FallbackBatches))

	c.Duration.WithLabelValues(code).Set(r.Finished.Sub(r.Started).Seconds())
	c.LastRun.WithLabelValues(code).Set(float64(r.Finished.Unix()))
}

// Push sends every metric in the collector's registry to the Pushgateway at uri, grouped by run id.
func (c *Collector) Push(ctx context.Context, uri string, r *Report) error {

	p := push.New(uri, PushJob).
		Gatherer(c.gatherer).
		Grouping("run_id", r.RunId)

	err := p.PushContext(ctx)

	if err != nil {
		return fmt.Errorf("Failed to push metrics to %s, %w", uri, err)
	}

	return nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {

	err := reg.Register(c)

	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError

	if errors.As(err, &already) {

		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)

		if ok {
			return existing, nil
		}
	}

	return nil, fmt.Errorf("Failed to register counter, %w", err)
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {

	err := reg.Register(g)

	if err == nil {
		return g, nil
	}

	var already prometheus.AlreadyRegisteredError

	if errors.As(err, &already) {

		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)

		if ok {
			return existing, nil
		}
	}

	return nil, fmt.Errorf("Failed to register gauge, %w", err)
}
