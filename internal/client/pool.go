package client

import (
	"context"
	"errors"
	"time"

	"github.com/satmihir/justlru/internal/rendezvous"
)

var ErrNoServers = errors.New("client pool has no servers")

// Pool spreads keys over several servers with rendezvous hashing, so each
// key has one home server and adding a server moves only its share of keys.
type Pool struct {
	router  *rendezvous.HRWRouter
	clients map[*rendezvous.Member]*Client
}

// NewPool builds a client per server URL. The opts apply to every client.
func NewPool(serverURLs []string, opts ...Option) (*Pool, error) {
	if len(serverURLs) == 0 {
		return nil, ErrNoServers
	}

	clients := make(map[*rendezvous.Member]*Client, len(serverURLs))
	members := make([]*rendezvous.Member, 0, len(serverURLs))
	for _, u := range serverURLs {
		m := rendezvous.NewMember(u)
		members = append(members, m)
		clients[m] = New(u, opts...)
	}

	return &Pool{
		router:  rendezvous.NewHRWRouter(members, nil),
		clients: clients,
	}, nil
}

// ClientFor returns the client owning key.
func (p *Pool) ClientFor(key string) *Client {
	return p.clients[p.router.Pick([]byte(key))]
}

func (p *Pool) Get(ctx context.Context, key string) (*Entry, error) {
	return p.ClientFor(key).Get(ctx, key)
}

func (p *Pool) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.ClientFor(key).SetWithRetry(ctx, key, value, ttl)
}

func (p *Pool) Delete(ctx context.Context, key string) error {
	return p.ClientFor(key).Delete(ctx, key)
}

func (p *Pool) Fetch(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	return p.ClientFor(key).Fetch(ctx, key, ttl, load)
}

// Servers lists the pool's server URLs.
func (p *Pool) Servers() []string {
	members := p.router.Members()
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID())
	}
	return out
}
