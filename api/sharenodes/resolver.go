package sharenodes

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultDNSServer is the local stub resolver.
const DefaultDNSServer = "127.0.0.53:53"

var ErrNoSRVRecords = errors.New("no SRV records found")

// EndpointResolver turns a configured endpoint into a dialable URL.
type EndpointResolver interface {
	Resolve(ctx context.Context, endpoint string) (string, error)
}

// SRVResolver resolves srv:// endpoints through DNS SRV records.
// Any other endpoint is returned unchanged.
//
//	srv://_shares._tcp.example.com/rpc?scheme=https -> https://node1.example.com:8443/rpc
type SRVResolver struct {
	Server string
	client *dns.Client
}

// NewSRVResolver creates a resolver querying server ("host:port").
func NewSRVResolver(server string, timeout time.Duration) *SRVResolver {
	if server == "" {
		server = DefaultDNSServer
	}
	return &SRVResolver{
		Server: server,
		client: &dns.Client{Timeout: timeout},
	}
}

func (r *SRVResolver) Resolve(ctx context.Context, endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "srv" {
		return endpoint, nil
	}

	records, err := r.lookupSRV(ctx, u.Host)
	if err != nil {
		return "", err
	}

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}

	target := records[0]
	resolved := url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", strings.TrimSuffix(target.Target, "."), target.Port),
		Path:   u.Path,
	}
	return resolved.String(), nil
}

// lookupSRV returns the records ordered by priority, then by descending weight.
func (r *SRVResolver) lookupSRV(ctx context.Context, name string) ([]*dns.SRV, error) {
	m1 := new(dns.Msg)
	m1.Id = dns.Id()
	m1.RecursionDesired = true
	m1.Question = make([]dns.Question, 1)
	m1.Question[0] = dns.Question{Name: dns.Fqdn(name), Qtype: dns.TypeSRV, Qclass: dns.ClassINET}

	in, _, err := r.client.ExchangeContext(ctx, m1, r.Server)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup of %s failed: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("SRV lookup of %s failed: %s", name, dns.RcodeToString[in.Rcode])
	}

	records := make([]*dns.SRV, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoSRVRecords, name)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})
	return records, nil
}
