package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linkstation/modemgw/internal/events"
)

// fakeSender replays canned AT replies. Queries without a canned reply
// fail with a transport-shaped error.
type fakeSender struct {
	mu      sync.Mutex
	replies map[string][]string
	calls   []string
}

func (f *fakeSender) Send(_ context.Context, cmd string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	if lines, ok := f.replies[cmd]; ok {
		return lines, nil
	}
	return nil, fmt.Errorf("serial i/o error: %s", cmd)
}

func goodReplies() map[string][]string {
	return map[string][]string{
		`AT+QENG="servingcell"`: {
			`+QENG: "servingcell","NOCONN","NR5G-SA","TDD",310,260,"ABC",235,"2F1A",504990,41,12,-85,-11,18,1,40`,
			"OK",
		},
		"AT+CEREG?":   {"+CEREG: 0,1", "OK"},
		"AT+C5GREG?":  {"+C5GREG: 0,1", "OK"},
		"AT+CGREG?":   {"+CGREG: 0,1", "OK"},
		"AT+QNWINFO":  {`+QNWINFO: "NR5G-TDD","310260","NR5G BAND 41",504990`, "OK"},
		"AT+QRSRP":    {"+QRSRP: -85,-32768,-32768,-32768,NR5G", "OK"},
		"AT+QRSRQ":    {"+QRSRQ: -11,-32768,-32768,-32768,NR5G", "OK"},
		"AT+QSINR":    {"+QSINR: 18,-32768,-32768,-32768,NR5G", "OK"},
		"AT+QCAINFO":  {`+QCAINFO: "PCC",504990,100,"NR5G BAND 41",1,235,-85,-11,-60,18`, "OK"},
		`AT+QENG="neighbourcell"`: {
			`+QENG: "neighbourcell","NR5G",30,504990,631,-90,-10`,
			"OK",
		},
		"AT+QTEMP":         {`+QTEMP:"modem-ambient-usr","34"`, "OK"},
		"AT+QNETDEVSTATUS": {"+QNETDEVSTATUS: rmnet_data0,connected,10.64.23.5,1000,2000", "OK"},
		"AT+CGDCONT?":      {`+CGDCONT: 1,"IPV4V6","fast.t-mobile.com"`, "OK"},
		"AT+CGACT?":        {"+CGACT: 1,1", "OK"},
		"AT+CGCONTRDP?":    {`+CGCONTRDP: 1,5,"fast.t-mobile.com","10.64.23.5","10.64.23.1","10.177.0.34","10.177.0.210"`, "OK"},
		"AT+QIDNSCFG?":     {`+QIDNSCFG: "IPV4","10.177.0.34","10.177.0.210"`, "OK"},
	}
}

func newTestCache(t *testing.T, sender Sender, bus *events.Bus) *Cache {
	t.Helper()
	return NewCache(CacheConfig{
		Sender:   sender,
		Interval: time.Hour,
		Bus:      bus,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestCachePollBuildsSnapshot(t *testing.T) {
	sender := &fakeSender{replies: goodReplies()}
	c := newTestCache(t, sender, nil)

	if c.Snapshot() != nil {
		t.Fatal("snapshot must be nil before the first cycle")
	}

	snap := c.Poll(context.Background())
	if snap == nil {
		t.Fatal("nil snapshot")
	}
	if snap.CycleID != 1 {
		t.Errorf("cycle = %d, want 1", snap.CycleID)
	}
	if snap.Serving == nil || snap.Serving.RAT != "SA" {
		t.Errorf("serving = %+v", snap.Serving)
	}
	if snap.Registration == nil || snap.Registration.EPSText != "registered (home)" {
		t.Errorf("registration = %+v", snap.Registration)
	}
	if snap.Operator == nil || snap.Operator.Name != "310260" {
		t.Errorf("operator = %+v", snap.Operator)
	}
	if snap.Signal == nil || snap.Signal.Quality != QualityExcellent {
		t.Errorf("signal = %+v", snap.Signal)
	}
	if snap.Session == nil || snap.Session.DefaultCID == nil || *snap.Session.DefaultCID != 1 {
		t.Errorf("session = %+v", snap.Session)
	}
	if got := c.Snapshot(); got != snap {
		t.Error("Snapshot must return the published cycle")
	}

	next := c.Poll(context.Background())
	if next.CycleID != 2 {
		t.Errorf("cycle = %d, want 2", next.CycleID)
	}
}

func TestCachePollIsolatesQueryFailures(t *testing.T) {
	replies := goodReplies()
	delete(replies, "AT+QTEMP")
	delete(replies, "AT+QCAINFO")
	sender := &fakeSender{replies: replies}

	bus := events.New()
	var mu sync.Mutex
	var failed []string
	unsub := bus.Subscribe(func(e events.PollErrorEvent) {
		mu.Lock()
		failed = append(failed, e.Query)
		mu.Unlock()
	})
	defer unsub()

	c := newTestCache(t, sender, bus)
	snap := c.Poll(context.Background())
	if snap == nil {
		t.Fatal("a partial failure must still produce a snapshot")
	}
	if snap.Temps != nil {
		t.Error("temps must be absent when the query failed")
	}
	if snap.Serving == nil || snap.Serving.SA == nil {
		t.Error("surviving queries must still decode")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(failed)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("poll error events = %d, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCachePollAllQueriesFail(t *testing.T) {
	sender := &fakeSender{replies: map[string][]string{}}
	c := newTestCache(t, sender, nil)
	if snap := c.Poll(context.Background()); snap != nil {
		t.Fatalf("want nil snapshot, got cycle %d", snap.CycleID)
	}
	if c.Snapshot() != nil {
		t.Error("a failed cycle must not replace the cached snapshot")
	}
}

func TestCachePollPublishesTelemetryEvent(t *testing.T) {
	bus := events.New()
	got := make(chan events.TelemetryUpdatedEvent, 1)
	unsub := bus.Subscribe(func(e events.TelemetryUpdatedEvent) {
		select {
		case got <- e:
		default:
		}
	})
	defer unsub()

	c := newTestCache(t, &fakeSender{replies: goodReplies()}, bus)
	c.Poll(context.Background())

	select {
	case e := <-got:
		if e.CycleID != 1 {
			t.Errorf("cycle = %d", e.CycleID)
		}
		if e.Operator != "310260" {
			t.Errorf("operator = %q", e.Operator)
		}
		if e.RAT != "SA" {
			t.Errorf("rat = %q", e.RAT)
		}
		if e.Quality != QualityExcellent {
			t.Errorf("quality = %q", e.Quality)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event published")
	}
}

func TestCachePollRunsFullBattery(t *testing.T) {
	sender := &fakeSender{replies: goodReplies()}
	c := newTestCache(t, sender, nil)
	c.Poll(context.Background())

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.calls) != len(pollQueries) {
		t.Fatalf("queries issued = %d, want %d", len(sender.calls), len(pollQueries))
	}
	for i, q := range pollQueries {
		if sender.calls[i] != q {
			t.Errorf("call %d = %q, want %q", i, sender.calls[i], q)
		}
	}
}

func TestCachePollStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCache(t, &fakeSender{replies: goodReplies()}, nil)
	if snap := c.Poll(ctx); snap != nil {
		t.Fatal("cancelled poll must not publish")
	}
}

func TestSnapshotWithoutRaw(t *testing.T) {
	c := newTestCache(t, &fakeSender{replies: goodReplies()}, nil)
	snap := c.Poll(context.Background())
	if snap.Raw == nil {
		t.Fatal("poller keeps the raw echo")
	}
	trimmed := snap.WithoutRaw()
	if trimmed.Raw != nil {
		t.Error("WithoutRaw must strip the echo")
	}
	if trimmed.CycleID != snap.CycleID {
		t.Error("WithoutRaw must keep the payload")
	}
	if snap.Raw == nil {
		t.Error("the cached snapshot must keep its echo")
	}
}

func TestRunPollsOnInterval(t *testing.T) {
	sender := &fakeSender{replies: goodReplies()}
	c := NewCache(CacheConfig{
		Sender:   sender,
		Interval: 20 * time.Millisecond,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if snap != nil && snap.CycleID >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no repeated cycles observed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
