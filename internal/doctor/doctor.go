// Package doctor checks the services the worker depends on and reports,
// layer by layer, what is reachable: DNS, TCP, then the Redis, Kafka and
// MCP protocols on top.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/expensecat/internal/config"
	"github.com/KafClaw/expensecat/internal/stream"
)

// DefaultTimeout bounds each network step.
const DefaultTimeout = 10 * time.Second

// Initializer opens an MCP session.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Options selects what Run checks.
type Options struct {
	Backend       string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	Brokers       string
	// Streams are the request and result stream names.
	Streams []string
	MCPURL  string
	MCP     Initializer
	Timeout time.Duration
}

// Run executes every check and returns the report.
func Run(ctx context.Context, opts Options) *Report {
	r := newReport()
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	switch opts.Backend {
	case config.BackendRedis:
		checkRedis(ctx, r, opts)
	case config.BackendKafka:
		checkKafka(ctx, r, opts)
	default:
		r.add(Row{"stream", opts.Backend, L3, FAIL, "Unknown stream backend", "Set STREAM_BACKEND to redis or kafka."})
	}
	checkMCP(ctx, r, opts)

	r.FinishedAt = time.Now()
	return r
}

func checkDNS(ctx context.Context, r *Report, component, host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		r.add(Row{component, host, L3, FAIL, fmt.Sprintf("DNS lookup failed: %v", err),
			"Check /etc/hosts, DNS server and VPN search domains."})
		return false
	}
	r.add(Row{component, host, L3, OK, "Resolved host", ""})
	return true
}

func checkTCP(ctx context.Context, r *Report, component, addr string, timeout time.Duration) bool {
	start := time.Now()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		r.add(Row{component, addr, L4, FAIL, fmt.Sprintf("TCP connect failed: %v", err),
			"Firewall, security groups, port mapping or the service is not running."})
		return false
	}
	_ = conn.Close()
	r.add(Row{component, addr, L4, OK, fmt.Sprintf("Connected in %s", time.Since(start).Truncate(time.Millisecond)), ""})
	return true
}

// reachable runs the DNS and TCP steps for addr.
func reachable(ctx context.Context, r *Report, component, addr string, timeout time.Duration) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		r.add(Row{component, addr, L3, FAIL, fmt.Sprintf("Invalid address: %v", err), "Use host:port."})
		return false
	}
	return checkDNS(ctx, r, component, host) && checkTCP(ctx, r, component, addr, timeout)
}

// ---------- Redis ----------

func checkRedis(ctx context.Context, r *Report, opts Options) {
	if !reachable(ctx, r, "redis", opts.RedisAddr, opts.Timeout) {
		return
	}
	client := stream.NewRedisClient(stream.RedisOptions{
		Addr:     opts.RedisAddr,
		Username: opts.RedisUsername,
		Password: opts.RedisPassword,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		r.add(Row{"redis", opts.RedisAddr, Redis, FAIL, fmt.Sprintf("PING failed: %v", err), redisHint(err)})
		return
	}
	r.add(Row{"redis", opts.RedisAddr, Redis, OK, "PING OK", ""})

	for _, name := range opts.Streams {
		kind, err := client.Type(ctx, name).Result()
		switch {
		case err != nil:
			r.add(Row{"redis", name, Redis, FAIL, fmt.Sprintf("TYPE failed: %v", err), redisHint(err)})
		case kind == "none":
			r.add(Row{"redis", name, Redis, WARN, "Stream does not exist yet", "It is created by the first XADD."})
		case kind != "stream":
			r.add(Row{"redis", name, Redis, FAIL, fmt.Sprintf("Key holds a %s, not a stream", kind), "Pick another stream name or delete the key."})
		default:
			n, err := client.XLen(ctx, name).Result()
			if err != nil {
				r.add(Row{"redis", name, Redis, FAIL, fmt.Sprintf("XLEN failed: %v", err), redisHint(err)})
				continue
			}
			r.add(Row{"redis", name, Redis, OK, fmt.Sprintf("Stream length %d", n), ""})
		}
	}
}

func redisHint(err error) string {
	em := err.Error()
	switch {
	case containsAny(em, "NOAUTH", "WRONGPASS", "invalid password", "invalid username"):
		return "Check REDIS_USERNAME and REDIS_PASSWORD."
	case containsAny(em, "NOPERM"):
		return "The ACL user lacks permission for this command or key."
	case isTimeout(err):
		return "Redis did not answer in time; check load and network path."
	default:
		return ""
	}
}

// ---------- Kafka ----------

func checkKafka(ctx context.Context, r *Report, opts Options) {
	var conn *kafka.Conn
	for _, broker := range strings.Split(opts.Brokers, ",") {
		broker = strings.TrimSpace(broker)
		if broker == "" || !reachable(ctx, r, "kafka", broker, opts.Timeout) {
			continue
		}
		c, err := kafkaConn(ctx, r, broker, opts.Timeout)
		if err != nil {
			continue
		}
		if conn == nil {
			conn = c
		} else {
			_ = c.Close()
		}
	}
	if conn == nil {
		r.add(Row{"kafka", opts.Brokers, Kafka, SKIP, "Topic checks skipped: no broker reachable", ""})
		return
	}
	defer conn.Close()

	parts, err := conn.ReadPartitions()
	if err != nil {
		r.add(Row{"kafka", opts.Brokers, Kafka, FAIL, policyHint("ReadPartitions", err), hint(err)})
		return
	}
	for _, name := range opts.Streams {
		topic := stream.TopicName(name)
		var found bool
		var leaders int
		for _, pt := range parts {
			if pt.Topic == topic {
				found = true
				if pt.Leader.Host != "" {
					leaders++
				}
			}
		}
		if !found {
			r.add(Row{"kafka", topic, Kafka, FAIL, "Topic not found or not authorized", "Grant Describe on the topic or create it."})
			continue
		}
		r.add(Row{"kafka", topic, Kafka, OK, fmt.Sprintf("Topic visible; leader partitions=%d", leaders), ""})
	}
}

func kafkaConn(ctx context.Context, r *Report, broker string, timeout time.Duration) (*kafka.Conn, error) {
	dialer := &kafka.Dialer{Timeout: timeout, DualStack: true}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", broker)
	if err != nil {
		r.add(Row{"kafka", broker, Kafka, FAIL, fmt.Sprintf("Broker dial failed: %v", err), "Listener not exposed or advertised.listeners mismatch."})
		return nil, err
	}
	if _, err := conn.ApiVersions(); err != nil {
		r.add(Row{"kafka", broker, Kafka, FAIL, fmt.Sprintf("ApiVersions failed: %v", err), "Broker incompatible or a proxy is interfering."})
		_ = conn.Close()
		return nil, err
	}
	r.add(Row{"kafka", broker, Kafka, OK, "ApiVersions OK", ""})
	return conn, nil
}

func policyHint(op string, err error) string {
	if ke, ok := kafkaErrorCode(err); ok {
		switch ke {
		case kafka.TopicAuthorizationFailed:
			return op + " failed: missing topic ACL"
		case kafka.GroupAuthorizationFailed:
			return op + " failed: missing group ACL"
		case kafka.SASLAuthenticationFailed:
			return op + " failed: SASL auth failure"
		case kafka.RequestTimedOut:
			return op + " failed: broker request timeout"
		}
	}
	if isTimeout(err) {
		return op + " failed: timeout (" + err.Error() + ")"
	}
	return op + " failed: " + err.Error()
}

func hint(err error) string {
	if ke, ok := kafkaErrorCode(err); ok {
		switch ke {
		case kafka.TopicAuthorizationFailed:
			return "Missing topic ACL: Write/Describe for produce; Read/Describe for consume."
		case kafka.GroupAuthorizationFailed:
			return "Missing group ACL: Read/Describe on KAFKA_CONSUMER_GROUP."
		case kafka.LeaderNotAvailable, kafka.NotLeaderForPartition:
			return "Leader not available; check broker health and metadata propagation."
		}
	}
	if isTimeout(err) {
		return "Client timeout: check network path, firewall, DNS or advertised.listeners."
	}
	return ""
}

func kafkaErrorCode(err error) (kafka.Error, bool) {
	var ke kafka.Error
	if errors.As(err, &ke) {
		return ke, true
	}
	return 0, false
}

// ---------- MCP ----------

func checkMCP(ctx context.Context, r *Report, opts Options) {
	if opts.MCP == nil {
		r.add(Row{"mcp", opts.MCPURL, MCP, SKIP, "MCP server not configured", "Set MCP_SERVER_URL and MCP_SECRET_KEY."})
		return
	}
	u, err := url.Parse(opts.MCPURL)
	if err != nil || u.Host == "" {
		r.add(Row{"mcp", opts.MCPURL, MCP, FAIL, "Invalid MCP_SERVER_URL", "Use an absolute http(s) URL."})
		return
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if !reachable(ctx, r, "mcp", net.JoinHostPort(u.Hostname(), port), opts.Timeout) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := opts.MCP.Initialize(ctx); err != nil {
		r.add(Row{"mcp", opts.MCPURL, MCP, FAIL, fmt.Sprintf("initialize failed: %v", err), mcpHint(err)})
		return
	}
	r.add(Row{"mcp", opts.MCPURL, MCP, OK, "initialize OK", ""})
}

func mcpHint(err error) string {
	em := err.Error()
	switch {
	case containsAny(em, "401", "403"):
		return "Check MCP_SECRET_KEY."
	case containsAny(em, "404"):
		return "MCP_SERVER_URL must point at the MCP endpoint, not the site root."
	case isTimeout(err):
		return "The MCP server did not answer in time; raise MCP_TIMEOUT or check the server."
	default:
		return ""
	}
}

// ---------- helpers ----------

func containsAny(s string, subs ...string) bool {
	ls := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(ls, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	em := strings.ToLower(err.Error())
	return strings.Contains(em, "deadline exceeded") || strings.Contains(em, "i/o timeout")
}
