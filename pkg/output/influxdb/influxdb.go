// Package influxdb pushes samples to InfluxDB in line protocol.
// Both 1.x (db query parameter) and 2.x (token, org, bucket) targets
// are supported.
package influxdb

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/output"
)

func init() {
	output.Register("influxdb", New)
}

const defaultPushTimeout = 10 * time.Second

var (
	// Shared client so every influxdb output reuses one connection pool.
	globalClient     *fasthttp.Client
	globalClientOnce sync.Once
)

func sharedClient() *fasthttp.Client {
	globalClientOnce.Do(func() {
		globalClient = &fasthttp.Client{
			MaxConnsPerHost:     100,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         defaultPushTimeout,
			WriteTimeout:        defaultPushTimeout,
		}
	})
	return globalClient
}

// Config holds the InfluxDB connection settings.
type Config struct {
	// URL is the server base address.
	URL string
	// Token authenticates against InfluxDB 2.x.
	Token string
	// Organization is the InfluxDB 2.x org.
	Organization string
	// Bucket is the InfluxDB 2.x bucket.
	Bucket string
	// Database is the InfluxDB 1.x database name.
	Database string
	// Precision is the line protocol timestamp precision.
	Precision string
	// PushInterval is how often the buffer is flushed.
	PushInterval time.Duration
	// BatchSize flushes early once this many samples are buffered.
	BatchSize int
	// Tags are added to every line.
	Tags map[string]string
}

// Output buffers samples and pushes them as line protocol batches.
type Output struct {
	params    output.Params
	config    Config
	client    *fasthttp.Client
	buffer    *bytes.Buffer
	count     int
	mu        sync.Mutex
	runStatus output.RunStatus
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates an InfluxDB output from the config argument.
func New(params output.Params) (output.Output, error) {
	config, err := parseConfig(params.ConfigArgument)
	if err != nil {
		return nil, err
	}

	if params.Tags != nil {
		if config.Tags == nil {
			config.Tags = make(map[string]string)
		}
		for k, v := range params.Tags {
			config.Tags[k] = v
		}
	}

	return &Output{
		params: params,
		config: config,
		client: sharedClient(),
		buffer: &bytes.Buffer{},
		stopCh: make(chan struct{}),
	}, nil
}

// parseConfig reads the target from a URL of the form
// http://host:port?db=name or http://host:port?token=x&org=y&bucket=z.
func parseConfig(arg string) (Config, error) {
	config := Config{
		Precision:    "ms",
		PushInterval: time.Second,
		BatchSize:    1000,
	}

	if arg == "" {
		return config, fmt.Errorf("influxdb URL must not be empty")
	}

	u, err := url.Parse(arg)
	if err != nil {
		return config, fmt.Errorf("parsing influxdb URL: %w", err)
	}

	config.URL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)

	q := u.Query()
	if db := q.Get("db"); db != "" {
		config.Database = db
	}
	if token := q.Get("token"); token != "" {
		config.Token = token
	}
	if org := q.Get("org"); org != "" {
		config.Organization = org
	}
	if bucket := q.Get("bucket"); bucket != "" {
		config.Bucket = bucket
	}

	return config, nil
}

func (o *Output) Description() string {
	return fmt.Sprintf("influxdb (%s)", o.config.URL)
}

func (o *Output) Start() error {
	o.wg.Add(1)
	go o.pushLoop()
	return nil
}

func (o *Output) Stop() error {
	close(o.stopCh)
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buffer.Len() > 0 {
		return o.flush()
	}
	return nil
}

func (o *Output) pushLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.config.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.mu.Lock()
			if o.buffer.Len() > 0 {
				if err := o.flush(); err != nil && o.params.Logger != nil {
					o.params.Logger.Error("pushing to influxdb failed: %v", err)
				}
			}
			o.mu.Unlock()
		}
	}
}

func (o *Output) AddMetricSamples(containers []metrics.SampleContainer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			o.writeSample(sample)
			o.count++

			if o.count >= o.config.BatchSize {
				if err := o.flush(); err != nil && o.params.Logger != nil {
					o.params.Logger.Error("pushing to influxdb failed: %v", err)
				}
			}
		}
	}
}

// writeSample appends one line protocol record to the buffer.
func (o *Output) writeSample(sample metrics.Sample) {
	measurement := sample.Metric.Name

	var tags []string
	for k, v := range o.config.Tags {
		tags = append(tags, fmt.Sprintf("%s=%s", escapeTag(k), escapeTag(v)))
	}
	for k, v := range sample.Tags {
		tags = append(tags, fmt.Sprintf("%s=%s", escapeTag(k), escapeTag(v)))
	}

	var line string
	if len(tags) > 0 {
		line = fmt.Sprintf("%s,%s value=%f %d\n",
			measurement,
			strings.Join(tags, ","),
			sample.Value,
			sample.Time.UnixMilli())
	} else {
		line = fmt.Sprintf("%s value=%f %d\n",
			measurement,
			sample.Value,
			sample.Time.UnixMilli())
	}

	o.buffer.WriteString(line)
}

// flush posts the buffered lines and resets the buffer.
func (o *Output) flush() error {
	if o.buffer.Len() == 0 {
		return nil
	}

	data := make([]byte, o.buffer.Len())
	copy(data, o.buffer.Bytes())
	o.buffer.Reset()
	o.count = 0

	var reqURL string
	if o.config.Token != "" {
		reqURL = fmt.Sprintf("%s/api/v2/write?org=%s&bucket=%s&precision=%s",
			o.config.URL, o.config.Organization, o.config.Bucket, o.config.Precision)
	} else {
		reqURL = fmt.Sprintf("%s/write?db=%s&precision=%s",
			o.config.URL, o.config.Database, o.config.Precision)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(reqURL)
	req.Header.SetContentType("text/plain")
	if o.config.Token != "" {
		req.Header.Set("Authorization", "Token "+o.config.Token)
	}
	req.SetBody(data)

	if err := o.client.DoDeadline(req, resp, time.Now().Add(defaultPushTimeout)); err != nil {
		return err
	}

	if resp.StatusCode() >= 400 {
		return fmt.Errorf("influxdb returned %d: %s", resp.StatusCode(), resp.Body())
	}

	return nil
}

func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}

// escapeTag escapes line protocol special characters.
func escapeTag(s string) string {
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "=", "\\=")
	s = strings.ReplaceAll(s, " ", "\\ ")
	return s
}
