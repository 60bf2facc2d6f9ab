package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EnvEndpoints names the environment variable read by NewEtcdSourceFromEnv.
const EnvEndpoints = "CLIMBER_ETCD_ENDPOINTS"

// Source yields the address specs of the servers to crawl.
type Source interface {
	Addresses(ctx context.Context) ([]string, error)
}

// Server is one registered queue server.
type Server struct {
	// Name is the registration key below the beanstalk prefix
	Name string `json:"name"`

	// Addr is an address spec: host, host:port or beanstalk://host:port
	Addr string `json:"addr"`

	// Metadata holds free-form labels such as region or role
	Metadata map[string]string `json:"metadata,omitempty"`

	// RegisteredAt is when the entry was written
	RegisteredAt time.Time `json:"registered_at"`
}

// Config configures an EtcdSource.
type Config struct {
	// Endpoints lists etcd cluster endpoints (e.g., "localhost:2379")
	Endpoints []string

	// Namespace roots the key space. Servers live below
	// /<namespace>/beanstalk/. Default: "climber"
	Namespace string

	// DialTimeout bounds connecting to etcd. Default: 5s
	DialTimeout time.Duration

	// TLS enables mutual TLS when set
	TLS *TLSConfig
}

// EtcdSource discovers servers registered in etcd.
//
// Each server is a key /<namespace>/beanstalk/<name> holding a JSON Server.
// Entries that do not decode are skipped.
type EtcdSource struct {
	kv        clientv3.KV
	watcher   clientv3.Watcher
	closer    func() error
	namespace string
}

var _ Source = (*EtcdSource)(nil)

// NewEtcdSource connects to etcd and verifies connectivity.
func NewEtcdSource(cfg Config) (*EtcdSource, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("discovery endpoints cannot be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.clientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		clientCfg.TLS = tlsConfig
	}

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	// Verify connectivity with a quick health check
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := cli.Get(ctx, "health-check"); err != nil {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	src := NewEtcdSourceFromKV(cli.KV, cfg.Namespace)
	src.watcher = cli.Watcher
	src.closer = cli.Close
	return src, nil
}

// NewEtcdSourceFromEnv connects to the comma separated endpoints in
// CLIMBER_ETCD_ENDPOINTS. When the variable is unset it returns (nil, nil).
func NewEtcdSourceFromEnv(namespace string) (*EtcdSource, error) {
	endpoints := os.Getenv(EnvEndpoints)
	if endpoints == "" {
		return nil, nil
	}

	endpointList := strings.Split(endpoints, ",")
	for i, ep := range endpointList {
		endpointList[i] = strings.TrimSpace(ep)
	}

	return NewEtcdSource(Config{Endpoints: endpointList, Namespace: namespace})
}

// NewEtcdSourceFromKV builds a source over an existing etcd KV, such as the
// KV of a shared *clientv3.Client. Watch is unavailable on such a source.
func NewEtcdSourceFromKV(kv clientv3.KV, namespace string) *EtcdSource {
	namespace = strings.Trim(namespace, "/")
	if namespace == "" {
		namespace = "climber"
	}
	return &EtcdSource{kv: kv, namespace: namespace}
}

// Prefix returns the key prefix servers are registered under.
func (s *EtcdSource) Prefix() string {
	return fmt.Sprintf("/%s/beanstalk/", s.namespace)
}

// Register writes a server entry, replacing any entry with the same name.
func (s *EtcdSource) Register(ctx context.Context, srv Server) error {
	if srv.Name == "" || strings.Contains(srv.Name, "/") {
		return fmt.Errorf("invalid server name %q", srv.Name)
	}
	if srv.Addr == "" {
		return fmt.Errorf("server %s has no address", srv.Name)
	}
	if srv.RegisteredAt.IsZero() {
		srv.RegisteredAt = time.Now().UTC()
	}

	data, err := json.Marshal(srv)
	if err != nil {
		return fmt.Errorf("failed to marshal server info: %w", err)
	}

	if _, err := s.kv.Put(ctx, s.Prefix()+srv.Name, string(data)); err != nil {
		return fmt.Errorf("failed to register server %s: %w", srv.Name, err)
	}
	return nil
}

// Deregister removes a server entry. Removing an absent entry is not an error.
func (s *EtcdSource) Deregister(ctx context.Context, name string) error {
	if _, err := s.kv.Delete(ctx, s.Prefix()+name); err != nil {
		return fmt.Errorf("failed to deregister server %s: %w", name, err)
	}
	return nil
}

// Servers returns every registered server ordered by name.
func (s *EtcdSource) Servers(ctx context.Context) ([]Server, error) {
	resp, err := s.kv.Get(ctx, s.Prefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover servers: %w", err)
	}

	servers := make([]Server, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var srv Server
		if err := json.Unmarshal(kv.Value, &srv); err != nil || srv.Addr == "" {
			// Skip invalid entries
			continue
		}
		if srv.Name == "" {
			srv.Name = strings.TrimPrefix(string(kv.Key), s.Prefix())
		}
		servers = append(servers, srv)
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

// Addresses returns the address spec of every registered server, ordered by
// server name.
func (s *EtcdSource) Addresses(ctx context.Context) ([]string, error) {
	servers, err := s.Servers(ctx)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(servers))
	for i, srv := range servers {
		addrs[i] = srv.Addr
	}
	return addrs, nil
}

// Watch sends the current address list, then a fresh list after every
// change below the prefix, until ctx is cancelled.
func (s *EtcdSource) Watch(ctx context.Context) (<-chan []string, error) {
	if s.watcher == nil {
		return nil, fmt.Errorf("watch requires an etcd client")
	}

	addrs, err := s.Addresses(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan []string, 1)
	ch <- addrs

	watchChan := s.watcher.Watch(ctx, s.Prefix(), clientv3.WithPrefix())

	go func() {
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					return
				}

				// Fetch current state after any change
				addrs, err := s.Addresses(ctx)
				if err != nil {
					// Skip this update if we can't query
					continue
				}

				select {
				case ch <- addrs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close closes the etcd client if this source created it.
func (s *EtcdSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
