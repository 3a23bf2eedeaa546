// Package webhook posts job lifecycle events to an HTTP endpoint, so
// downstream dashboards learn when a forecast run starts, progresses,
// and finishes.
package webhook

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"

	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/output"
)

func init() {
	output.Register("webhook", New)
}

const (
	defaultPushInterval = 5 * time.Second
	defaultTimeout      = 10 * time.Second
)

var (
	globalClient     *fasthttp.Client
	globalClientOnce sync.Once
)

func sharedClient() *fasthttp.Client {
	globalClientOnce.Do(func() {
		globalClient = &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         defaultTimeout,
			WriteTimeout:        defaultTimeout,
		}
	})
	return globalClient
}

// Config holds the webhook target settings.
type Config struct {
	// URL is the endpoint receiving event payloads.
	URL string
	// PushInterval is how often progress events are sent.
	PushInterval time.Duration
	// Timeout bounds each POST.
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
}

// Event is the JSON document posted for each lifecycle change.
type Event struct {
	Event        string  `json:"event"`
	JobID        string  `json:"job_id,omitempty"`
	JobName      string  `json:"job_name,omitempty"`
	Time         int64   `json:"time"`
	Status       string  `json:"status,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	SeriesDone   int64   `json:"series_done"`
	SeriesFailed int64   `json:"series_failed"`
	Error        string  `json:"error,omitempty"`
}

// Output sends started, progress, and finished events.
type Output struct {
	output.SampleBuffer

	params  output.Params
	config  Config
	client  *fasthttp.Client
	flusher *output.PeriodicFlusher

	seriesDone   atomic.Int64
	seriesFailed atomic.Int64

	mu        sync.Mutex
	runStatus output.RunStatus
}

// New creates a webhook output from the config argument.
func New(params output.Params) (output.Output, error) {
	config, err := parseConfig(params.ConfigArgument)
	if err != nil {
		return nil, err
	}

	return &Output{
		params: params,
		config: config,
		client: sharedClient(),
	}, nil
}

// parseConfig reads the endpoint from a URL of the form
// https://host/hook?interval=5s&timeout=10s&token=secret.
func parseConfig(arg string) (Config, error) {
	config := Config{
		PushInterval: defaultPushInterval,
		Timeout:      defaultTimeout,
		Headers:      make(map[string]string),
	}

	if arg == "" {
		return config, fmt.Errorf("webhook URL must not be empty")
	}

	u, err := url.Parse(arg)
	if err != nil {
		return config, fmt.Errorf("parsing webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return config, fmt.Errorf("webhook URL must be http or https, got %q", u.Scheme)
	}

	q := u.Query()
	if interval := q.Get("interval"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return config, fmt.Errorf("parsing webhook interval: %w", err)
		}
		config.PushInterval = d
	}
	if timeout := q.Get("timeout"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return config, fmt.Errorf("parsing webhook timeout: %w", err)
		}
		config.Timeout = d
	}
	if token := q.Get("token"); token != "" {
		config.Headers["Authorization"] = "Bearer " + token
	}

	q.Del("interval")
	q.Del("timeout")
	q.Del("token")
	u.RawQuery = q.Encode()
	config.URL = u.String()

	return config, nil
}

func (o *Output) Description() string {
	return fmt.Sprintf("webhook (%s)", o.config.URL)
}

func (o *Output) Start() error {
	o.postEvent(Event{
		Event:   "job.started",
		JobID:   o.params.JobID,
		JobName: o.params.JobName,
		Time:    time.Now().UnixMilli(),
	})

	pf, err := output.NewPeriodicFlusher(o.config.PushInterval, o.flushProgress)
	if err != nil {
		return err
	}
	o.flusher = pf
	return nil
}

func (o *Output) Stop() error {
	o.flusher.Stop()

	o.mu.Lock()
	status := o.runStatus
	o.mu.Unlock()

	ev := Event{
		Event:        "job.finished",
		JobID:        o.params.JobID,
		JobName:      o.params.JobName,
		Time:         time.Now().UnixMilli(),
		Status:       status.Status,
		Duration:     status.Duration,
		SeriesDone:   o.seriesDone.Load(),
		SeriesFailed: o.seriesFailed.Load(),
	}
	if status.Error != nil {
		ev.Error = status.Error.Error()
	}
	return o.postEvent(ev)
}

// flushProgress drains buffered samples into the counters and posts a
// progress event when anything changed.
func (o *Output) flushProgress() {
	samples := o.GetBufferedSamples()
	changed := false
	for _, container := range samples {
		for _, sample := range container.GetSamples() {
			switch sample.Metric.Name {
			case output.MetricSeriesForecasts:
				o.seriesDone.Add(1)
				changed = true
			case output.MetricSeriesFailed:
				if sample.Value != 0 {
					o.seriesFailed.Add(1)
					changed = true
				}
			}
		}
	}
	if !changed {
		return
	}

	o.postEvent(Event{
		Event:        "job.progress",
		JobID:        o.params.JobID,
		JobName:      o.params.JobName,
		Time:         time.Now().UnixMilli(),
		SeriesDone:   o.seriesDone.Load(),
		SeriesFailed: o.seriesFailed.Load(),
	})
}

func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}

// postEvent sends one event document. Failures are logged and dropped;
// a dead dashboard must not fail the run.
func (o *Output) postEvent(ev Event) error {
	body, err := jsonutil.Marshal(ev)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(o.config.URL)
	req.Header.SetContentType("application/json")
	for k, v := range o.config.Headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := o.client.DoDeadline(req, resp, time.Now().Add(o.config.Timeout)); err != nil {
		if o.params.Logger != nil {
			o.params.Logger.Warn("posting %s event failed: %v", ev.Event, err)
		}
		return nil
	}
	if resp.StatusCode() >= 400 {
		if o.params.Logger != nil {
			o.params.Logger.Warn("webhook returned %d for %s event", resp.StatusCode(), ev.Event)
		}
	}
	return nil
}

var _ output.Output = &Output{}
