package beanstalk

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Command names counted by MemoryServer.Calls.
const (
	CmdPut       = "put"
	CmdPeek      = "peek"
	CmdStatsJob  = "stats-job"
	CmdDelete    = "delete"
	CmdUse       = "use"
	CmdListTubes = "list-tubes"
	CmdStatsTube = "stats-tube"
)

type memoryJob struct {
	id      uint64
	tube    string
	body    []byte
	pri     uint32
	delay   time.Duration
	ttr     time.Duration
	created time.Time
}

// MemoryServer is an in-process stand-in for a beanstalkd server. Ids are
// assigned sequentially starting at 1, never reused until Reset.
//
// Every command issued through a MemoryClient is counted, which lets tests
// assert on the number of round trips a scan costs.
type MemoryServer struct {
	mu      sync.Mutex
	nextID  uint64
	jobs    map[uint64]*memoryJob
	tubes   map[string]*tubeCounters
	calls   map[string]int
	clients []*MemoryClient
}

type tubeCounters struct {
	total   uint64
	deletes uint64
}

// NewMemoryServer returns an empty server whose first id is 1.
func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		nextID: 1,
		jobs:   make(map[uint64]*memoryJob),
		tubes:  map[string]*tubeCounters{"default": {}},
		calls:  make(map[string]int),
	}
}

// Client returns a new client bound to this server. addr only labels it.
func (s *MemoryServer) Client(addr string) *MemoryClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &MemoryClient{srv: s, addr: addr, used: "default"}
	s.clients = append(s.clients, c)
	return c
}

// Insert seeds a job directly, bypassing the call counters.
func (s *MemoryServer) Insert(tube string, body []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tube, body, 1024, 0, time.Minute)
}

// Remove deletes a job directly, bypassing the call counters. It reports
// whether the job existed.
func (s *MemoryServer) Remove(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// SetNextID moves the id sequence forward, as if earlier ids had been used
// and deleted. It panics if id would reuse an assigned id.
func (s *MemoryServer) SetNextID(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < s.nextID {
		panic(fmt.Sprintf("memory server: next id %d below current %d", id, s.nextID))
	}
	s.nextID = id
}

// Reset drops every job and restarts the id sequence at 1, like a server
// restarted with fresh storage.
func (s *MemoryServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = 1
	s.jobs = make(map[uint64]*memoryJob)
	s.tubes = map[string]*tubeCounters{"default": {}}
	for _, c := range s.clients {
		s.counters(c.used)
	}
}

// Calls returns how many times cmd was issued by clients.
func (s *MemoryServer) Calls(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cmd]
}

// ResetCalls zeroes every call counter.
func (s *MemoryServer) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

// Len returns the number of live jobs.
func (s *MemoryServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// IDs returns the ids of every live job in ascending order.
func (s *MemoryServer) IDs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryServer) insertLocked(tube string, body []byte, pri uint32, delay, ttr time.Duration) uint64 {
	id := s.nextID
	s.nextID++
	s.jobs[id] = &memoryJob{
		id:      id,
		tube:    tube,
		body:    append([]byte(nil), body...),
		pri:     pri,
		delay:   delay,
		ttr:     ttr,
		created: time.Now(),
	}
	s.counters(tube).total++
	return id
}

func (s *MemoryServer) removeLocked(id uint64) bool {
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	delete(s.jobs, id)
	s.counters(j.tube).deletes++
	return true
}

func (s *MemoryServer) counters(tube string) *tubeCounters {
	tc, ok := s.tubes[tube]
	if !ok {
		tc = &tubeCounters{}
		s.tubes[tube] = tc
	}
	return tc
}

// tubeExistsLocked mirrors beanstalkd: a tube exists while it holds jobs or
// some connection uses it. default always exists.
func (s *MemoryServer) tubeExistsLocked(name string) bool {
	if name == "default" {
		return true
	}
	for _, j := range s.jobs {
		if j.tube == name {
			return true
		}
	}
	for _, c := range s.clients {
		if !c.closed && c.used == name {
			return true
		}
	}
	return false
}

// MemoryClient implements Client against a MemoryServer.
type MemoryClient struct {
	srv    *MemoryServer
	addr   string
	used   string
	closed bool
}

var _ Client = (*MemoryClient)(nil)

// Addr returns the label the client was created with.
func (c *MemoryClient) Addr() string {
	return c.addr
}

// Put inserts a job into the used tube.
func (c *MemoryClient) Put(ctx context.Context, body []byte, pri uint32, delay, ttr time.Duration) (uint64, error) {
	if err := c.begin(ctx, CmdPut); err != nil {
		return 0, err
	}
	defer c.srv.mu.Unlock()
	return c.srv.insertLocked(c.used, body, pri, delay, ttr), nil
}

// Peek returns a job body.
func (c *MemoryClient) Peek(ctx context.Context, id uint64) ([]byte, error) {
	if err := c.begin(ctx, CmdPeek); err != nil {
		return nil, err
	}
	defer c.srv.mu.Unlock()
	j, ok := c.srv.jobs[id]
	if !ok {
		return nil, fmt.Errorf("peek %d: %w", id, ErrNotFound)
	}
	return append([]byte(nil), j.body...), nil
}

// StatsJob returns job stats in the server's string form.
func (c *MemoryClient) StatsJob(ctx context.Context, id uint64) (map[string]string, error) {
	if err := c.begin(ctx, CmdStatsJob); err != nil {
		return nil, err
	}
	defer c.srv.mu.Unlock()
	j, ok := c.srv.jobs[id]
	if !ok {
		return nil, fmt.Errorf("stats-job %d: %w", id, ErrNotFound)
	}
	age := time.Since(j.created)
	state := "ready"
	timeLeft := time.Duration(0)
	if j.delay > age {
		state = "delayed"
		timeLeft = j.delay - age
	}
	return map[string]string{
		"id":        strconv.FormatUint(j.id, 10),
		"tube":      j.tube,
		"state":     state,
		"pri":       strconv.FormatUint(uint64(j.pri), 10),
		"age":       strconv.FormatInt(int64(age/time.Second), 10),
		"delay":     strconv.FormatInt(int64(j.delay/time.Second), 10),
		"ttr":       strconv.FormatInt(int64(j.ttr/time.Second), 10),
		"time-left": strconv.FormatInt(int64(timeLeft/time.Second), 10),
		"file":      "0",
		"reserves":  "0",
		"timeouts":  "0",
		"releases":  "0",
		"buries":    "0",
		"kicks":     "0",
	}, nil
}

// Delete removes a job.
func (c *MemoryClient) Delete(ctx context.Context, id uint64) error {
	if err := c.begin(ctx, CmdDelete); err != nil {
		return err
	}
	defer c.srv.mu.Unlock()
	if !c.srv.removeLocked(id) {
		return fmt.Errorf("delete %d: %w", id, ErrNotFound)
	}
	return nil
}

// Use selects the tube for Put.
func (c *MemoryClient) Use(ctx context.Context, tube string) error {
	if tube == "" {
		return fmt.Errorf("tube name cannot be empty")
	}
	if err := c.begin(ctx, CmdUse); err != nil {
		return err
	}
	defer c.srv.mu.Unlock()
	c.used = tube
	c.srv.counters(tube)
	return nil
}

// ListTubes returns existing tubes in name order.
func (c *MemoryClient) ListTubes(ctx context.Context) ([]string, error) {
	if err := c.begin(ctx, CmdListTubes); err != nil {
		return nil, err
	}
	defer c.srv.mu.Unlock()
	var names []string
	for name := range c.srv.tubes {
		if c.srv.tubeExistsLocked(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// StatsTube returns tube stats.
func (c *MemoryClient) StatsTube(ctx context.Context, name string) (map[string]string, error) {
	if err := c.begin(ctx, CmdStatsTube); err != nil {
		return nil, err
	}
	defer c.srv.mu.Unlock()
	if !c.srv.tubeExistsLocked(name) {
		return nil, fmt.Errorf("stats-tube %s: %w", name, ErrNotFound)
	}
	var ready, delayed, urgent uint64
	for _, j := range c.srv.jobs {
		if j.tube != name {
			continue
		}
		if j.delay > time.Since(j.created) {
			delayed++
			continue
		}
		ready++
		if j.pri < 1024 {
			urgent++
		}
	}
	var using uint64
	for _, cl := range c.srv.clients {
		if !cl.closed && cl.used == name {
			using++
		}
	}
	tc := c.srv.counters(name)
	return map[string]string{
		"name":                  name,
		"current-jobs-urgent":   strconv.FormatUint(urgent, 10),
		"current-jobs-ready":    strconv.FormatUint(ready, 10),
		"current-jobs-reserved": "0",
		"current-jobs-delayed":  strconv.FormatUint(delayed, 10),
		"current-jobs-buried":   "0",
		"total-jobs":            strconv.FormatUint(tc.total, 10),
		"current-using":         strconv.FormatUint(using, 10),
		"current-watching":      "0",
		"current-waiting":       "0",
		"cmd-delete":            strconv.FormatUint(tc.deletes, 10),
		"cmd-pause-tube":        "0",
		"pause":                 "0",
		"pause-time-left":       "0",
	}, nil
}

// Close marks the client closed.
func (c *MemoryClient) Close() error {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	c.closed = true
	return nil
}

// begin checks the context, takes the server lock and counts the command.
// On success the caller owns the lock.
func (c *MemoryClient) begin(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.srv.mu.Lock()
	if c.closed {
		c.srv.mu.Unlock()
		return ErrClosed
	}
	c.srv.calls[cmd]++
	return nil
}
