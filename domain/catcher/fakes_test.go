package catcher

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	customlog "github.com/open-teleop/turtle-catcher/pkg/log"
)

func newTestLogger() customlog.Logger {
	return customlog.NewWriterLogger("debug", io.Discard)
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// recorder captures every bridge interaction in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakePublisher struct {
	rec      *recorder
	mu       sync.Mutex
	commands []VelocityCommand
	err      error
}

func (p *fakePublisher) PublishVelocity(cmd VelocityCommand) error {
	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	err := p.err
	p.mu.Unlock()
	if p.rec != nil {
		p.rec.add("publish")
	}
	return err
}

func (p *fakePublisher) published() []VelocityCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VelocityCommand(nil), p.commands...)
}

type fakeSpawnService struct {
	rec      *recorder
	mu       sync.Mutex
	requests []SpawnRequest
	waitErr  error
	spawnErr error
}

func (s *fakeSpawnService) WaitForService(ctx context.Context, timeout time.Duration) error {
	return s.waitErr
}

func (s *fakeSpawnService) Spawn(ctx context.Context, req SpawnRequest) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.rec != nil {
		s.rec.add("spawn")
	}
	return s.spawnErr
}

func (s *fakeSpawnService) spawned() []SpawnRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SpawnRequest(nil), s.requests...)
}

type fakeKillService struct {
	rec     *recorder
	mu      sync.Mutex
	names   []string
	waitErr error
	result  error
}

func (k *fakeKillService) WaitForService(ctx context.Context, timeout time.Duration) error {
	return k.waitErr
}

func (k *fakeKillService) KillAsync(ctx context.Context, name string) <-chan error {
	k.mu.Lock()
	k.names = append(k.names, name)
	k.mu.Unlock()
	if k.rec != nil {
		k.rec.add("kill")
	}
	ch := make(chan error, 1)
	ch <- k.result
	return ch
}

func (k *fakeKillService) killed() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.names...)
}

var errBridgeDown = errors.New("bridge down")

type testBed struct {
	rec       *recorder
	publisher *fakePublisher
	spawn     *fakeSpawnService
	kill      *fakeKillService
	pauses    []time.Duration
	node      *Node
}

func newTestBed(opts ...ControllerOption) *testBed {
	rec := &recorder{}
	tb := &testBed{
		rec:       rec,
		publisher: &fakePublisher{rec: rec},
		spawn:     &fakeSpawnService{rec: rec},
		kill:      &fakeKillService{rec: rec},
	}
	pause := WithPause(func(ctx context.Context, d time.Duration) error {
		tb.pauses = append(tb.pauses, d)
		rec.add("pause")
		return ctx.Err()
	})
	bridge := Bridge{Commands: tb.publisher, Spawn: tb.spawn, Kill: tb.kill}
	tb.node = NewNode(bridge, newTestRand(), newTestLogger(), append([]ControllerOption{pause}, opts...)...)
	return tb
}

// installGoal makes goal current without going through the spawn service
func (tb *testBed) installGoal(goal Goal) {
	tb.node.Spawner.mu.Lock()
	tb.node.Spawner.goal = goal
	tb.node.Spawner.hasGoal = true
	tb.node.Spawner.mu.Unlock()
}
