package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/linkstation/modemgw/internal/events"
	"github.com/linkstation/modemgw/internal/metrics"
)

// Sender issues one AT command and returns the reply lines.
// *transport.Transport satisfies this.
type Sender interface {
	Send(ctx context.Context, cmd string) ([]string, error)
}

// pollQueries is the fixed battery one cycle walks through, in order.
var pollQueries = []string{
	`AT+QENG="servingcell"`,
	"AT+CEREG?",
	"AT+C5GREG?",
	"AT+CGREG?",
	"AT+QNWINFO",
	"AT+QRSRP",
	"AT+QRSRQ",
	"AT+QSINR",
	"AT+QCAINFO",
	`AT+QENG="neighbourcell"`,
	"AT+QTEMP",
	"AT+QNETDEVSTATUS",
	"AT+CGDCONT?",
	"AT+CGACT?",
	"AT+CGCONTRDP?",
	"AT+QIDNSCFG?",
}

const defaultPollInterval = 5 * time.Second

// CacheConfig wires a Cache to its collaborators.
type CacheConfig struct {
	Sender   Sender
	Interval time.Duration
	Bus      *events.Bus
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Cache polls the modem on a fixed interval and holds the latest
// snapshot. Readers never wait on the serial channel.
type Cache struct {
	cfg      CacheConfig
	snapshot atomic.Pointer[Snapshot]
	cycle    atomic.Uint64
	logger   *slog.Logger
}

// NewCache creates a Cache. It does not poll until Run or Poll is
// called.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{cfg: cfg, logger: logger}
}

// Snapshot returns the most recent snapshot, or nil before the first
// completed cycle.
func (c *Cache) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Run polls until ctx is cancelled. The first cycle starts
// immediately.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	c.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll(ctx)
		}
	}
}

// Poll runs one complete cycle and publishes the resulting snapshot.
// A failing query degrades the snapshot instead of aborting the cycle.
func (c *Cache) Poll(ctx context.Context) *Snapshot {
	raw := make(map[string][]string, len(pollQueries))
	failures := 0
	for _, q := range pollQueries {
		if ctx.Err() != nil {
			return nil
		}
		lines, err := c.cfg.Sender.Send(ctx, q)
		if err != nil {
			failures++
			c.logger.Warn("poll query failed", "query", q, "error", err)
			if c.cfg.Bus != nil {
				c.cfg.Bus.Publish(events.PollErrorEvent{
					Query:     q,
					Error:     err.Error(),
					Timestamp: time.Now().UTC().Format(time.RFC3339),
				})
			}
			continue
		}
		raw[q] = lines
	}

	if failures == len(pollQueries) {
		c.logger.Error("poll cycle failed, every query errored")
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		}
		return nil
	}

	snap := c.assemble(raw)
	c.snapshot.Store(snap)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SnapshotTimestamp.Set(float64(snap.Timestamp.Unix()))
	}
	if c.cfg.Bus != nil {
		ev := events.TelemetryUpdatedEvent{
			CycleID:   snap.CycleID,
			Timestamp: snap.Timestamp.UTC().Format(time.RFC3339),
		}
		if snap.Operator != nil {
			ev.Operator = snap.Operator.Name
		}
		if snap.Mode != nil {
			ev.RAT = snap.Mode.RAT
		}
		if snap.Signal != nil {
			ev.Quality = snap.Signal.Quality
		}
		c.cfg.Bus.Publish(ev)
	}
	c.logger.Debug("poll cycle complete", "cycle", snap.CycleID, "failed_queries", failures)
	return snap
}

// assemble decodes the raw battery output into a typed snapshot.
func (c *Cache) assemble(raw map[string][]string) *Snapshot {
	snap := &Snapshot{
		CycleID:   c.cycle.Add(1),
		Timestamp: time.Now().UTC(),
		Raw:       raw,
	}

	snap.Serving = DecodeServing(raw[`AT+QENG="servingcell"`])
	snap.Registration = DecodeRegistration(raw["AT+CEREG?"], raw["AT+C5GREG?"], raw["AT+CGREG?"])
	snap.Mode, snap.Operator = DecodeQNWInfo(raw["AT+QNWINFO"])
	snap.Signal = DecodeSignal(raw["AT+QRSRP"], raw["AT+QRSRQ"], raw["AT+QSINR"])
	snap.CA = DecodeQCAInfo(raw["AT+QCAINFO"])
	snap.Neighbors = DecodeNeighbors(raw[`AT+QENG="neighbourcell"`])
	snap.Temps = DecodeQTemp(raw["AT+QTEMP"])
	snap.NetDev = DecodeNetDev(raw["AT+QNETDEVSTATUS"])
	snap.Session = DecodeSession(raw["AT+CGDCONT?"], raw["AT+CGACT?"], raw["AT+CGCONTRDP?"], raw["AT+QIDNSCFG?"])

	// The aggregate quality prefers the dedicated signal queries and
	// falls back to the serving cell measurement.
	rsrp, sinr := c.signalPair(snap)
	if snap.Signal == nil && rsrp != nil {
		snap.Signal = &Signal{RSRP: rsrp, SINR: sinr}
	}
	if snap.Signal != nil {
		if snap.Signal.RSRP == nil {
			snap.Signal.RSRP = rsrp
		}
		if snap.Signal.SINR == nil {
			snap.Signal.SINR = sinr
		}
		if c.isNR(snap) {
			snap.Signal.Quality = RateQualityNR(snap.Signal.RSRP, snap.Signal.SINR)
		} else {
			snap.Signal.Quality = RateQualityLTE(snap.Signal.RSRP, snap.Signal.SINR)
		}
	}
	return snap
}

func (c *Cache) signalPair(snap *Snapshot) (rsrp, sinr *int) {
	if snap.Serving == nil {
		return nil, nil
	}
	switch {
	case snap.Serving.SA != nil:
		return snap.Serving.SA.RSRP, snap.Serving.SA.SINR
	case snap.Serving.NR != nil:
		return snap.Serving.NR.RSRP, snap.Serving.NR.SINR
	case snap.Serving.NSA != nil:
		return snap.Serving.NSA.RSRP, snap.Serving.NSA.SINR
	case snap.Serving.LTE != nil:
		return snap.Serving.LTE.RSRP, snap.Serving.LTE.SINR
	}
	return nil, nil
}

func (c *Cache) isNR(snap *Snapshot) bool {
	if snap.Mode != nil && snap.Mode.RAT == "SA" {
		return true
	}
	if snap.Serving != nil {
		return snap.Serving.RAT == "SA" || snap.Serving.RAT == "NSA"
	}
	return false
}

// WithoutRaw returns a copy of the snapshot with the AT echo stripped,
// for the non-verbose view.
func (s *Snapshot) WithoutRaw() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Raw = nil
	return &cp
}
