package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aru-oka/occusight/vision-server/internal/logger"
	"github.com/aru-oka/occusight/vision-server/internal/metrics"
)

// observation is one timestamped counts sample. Observations are
// appended in non-decreasing time order, so pruning is a prefix trim.
type observation struct {
	at     time.Time
	counts map[string]int
}

// Reporter ingests per-domain counts and periodically pushes the
// per-domain maximum over a sliding window to the configured
// endpoint. Failed pushes are logged and never retried; the next
// window's attempt is independent.
type Reporter struct {
	window  time.Duration
	client  *http.Client
	archive *Archive
	m       *metrics.Metrics

	mu       sync.Mutex
	endpoint string
	history  []observation

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReporter creates a reporter. endpoint may be empty (counts are
// aggregated but not pushed); archive may be nil.
func NewReporter(endpoint string, window time.Duration, archive *Archive, m *metrics.Metrics) *Reporter {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Reporter{
		window:   window,
		endpoint: endpoint,
		archive:  archive,
		m:        m,
		client:   &http.Client{Timeout: 2 * time.Second},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetEndpoint changes the push endpoint. An empty URL disables pushes.
func (r *Reporter) SetEndpoint(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoint = url
}

// Endpoint returns the configured push endpoint.
func (r *Reporter) Endpoint() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoint
}

// UpdateCounts appends a timestamped observation and trims
// observations that have aged out of the window.
func (r *Reporter) UpdateCounts(counts map[string]int) {
	snapshot := make(map[string]int, len(counts))
	for name, count := range counts {
		snapshot[name] = count
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, observation{at: now, counts: snapshot})
	r.pruneLocked(now)
}

func (r *Reporter) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	trim := 0
	for trim < len(r.history) && r.history[trim].at.Before(cutoff) {
		trim++
	}
	if trim > 0 {
		r.history = r.history[trim:]
	}
}

// maxCounts computes, for each domain seen in any retained
// observation, the maximum count within the window ending at now.
// Domains absent from an observation contribute nothing to it.
func (r *Reporter) maxCounts(now time.Time) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked(now)

	maxes := make(map[string]int)
	for _, obs := range r.history {
		for name, count := range obs.counts {
			if cur, ok := maxes[name]; !ok || count > cur {
				maxes[name] = count
			}
		}
	}
	return maxes
}

// Start launches the reporting loop.
func (r *Reporter) Start() {
	go r.run()
}

// Stop shuts the loop down and waits for it to exit.
func (r *Reporter) Stop() {
	close(r.stopCh)
	select {
	case <-r.doneCh:
	case <-time.After(5 * time.Second):
		logger.Warn("report", "reporting loop did not stop in time")
	}
}

func (r *Reporter) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.window)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.flush(time.Now())
		}
	}
}

// flush runs one reporting cycle: archive the window maxima and push
// them if an endpoint is configured. An empty map is a no-op.
func (r *Reporter) flush(now time.Time) {
	maxes := r.maxCounts(now)
	if len(maxes) == 0 {
		return
	}

	if r.archive != nil {
		if err := r.archive.Record(now, maxes); err != nil {
			logger.Warn("report", "archive window report: %v", err)
		}
	}

	endpoint := r.Endpoint()
	if endpoint == "" {
		return
	}

	if err := r.push(endpoint, maxes); err != nil {
		logger.Error("report", "push to %s: %v", endpoint, err)
		if r.m != nil {
			r.m.ReportErrors.Add(1)
		}
		return
	}
	if r.m != nil {
		r.m.ReportsSent.Add(1)
	}
	logger.Debug("report", "pushed %d domain maxima to %s", len(maxes), endpoint)
}

// push issues a single POST of {domain: max} with the short client
// timeout. Any non-2xx status is an error.
func (r *Reporter) push(endpoint string, maxes map[string]int) error {
	body, err := json.Marshal(maxes)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	resp, err := r.client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
