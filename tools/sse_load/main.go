// Command sse_load opens many concurrent subscriptions to the recommendation state stream
// and reports connection, event and phase counters.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vadiminshakov/skinsync/internal/services/recommender"
	"go.uber.org/zap"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64
	badPayloads atomic.Int64

	mu     sync.Mutex
	phases map[recommender.Phase]int64
}

func (c *counters) phase(p recommender.Phase) {
	c.mu.Lock()
	c.phases[p]++
	c.mu.Unlock()
}

func (c *counters) fields(start time.Time) []zap.Field {
	c.mu.Lock()
	phases := make(map[string]int64, len(c.phases))
	for p, n := range c.phases {
		phases[string(p)] = n
	}
	c.mu.Unlock()

	return []zap.Field{
		zap.Int64("connected", c.connected.Load()),
		zap.Int64("connect_errs", c.connectErrs.Load()),
		zap.Int64("stream_errs", c.streamErrs.Load()),
		zap.Int64("events", c.events.Load()),
		zap.Int64("bad_payloads", c.badPayloads.Load()),
		zap.Any("phases", phases),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Second)),
	}
}

func main() {
	var (
		targetURL    string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8090/recommendations/stream", "state stream URL")
	flag.IntVar(&connections, "conns", 200, "number of concurrent subscriptions")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread connection starts across this window")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		// 1 second per 500 connections
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}

	logger.Info("starting state stream load",
		zap.String("url", targetURL),
		zap.Int("conns", connections),
		zap.Duration("duration", testDuration),
		zap.Duration("ramp", rampUp))

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConns:        connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	c := &counters{phases: make(map[recommender.Phase]int64)}
	start := time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("status", c.fields(start)...)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval):
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, c)
		}()
	}

	wg.Wait()
	stop()

	elapsed := max(time.Since(start), time.Millisecond)
	fmt.Printf("done: events/s=%.2f\n", float64(c.events.Load())/elapsed.Seconds())
	logger.Info("finished", c.fields(start)...)
}

// subscribe reads one stream until ctx ends, decoding every state event.
func subscribe(ctx context.Context, client *http.Client, url string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}

		data, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), "data: ")
		if !ok {
			// event names, heartbeats and separators
			continue
		}
		c.events.Add(1)

		var st recommender.State
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			c.badPayloads.Add(1)
			continue
		}
		c.phase(st.Phase)
	}
}
