package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type ExchangeKind string

const (
	// Fanout delivers to every bound queue; the routing key is ignored.
	Fanout ExchangeKind = "fanout"
	// Topic delivers to queues whose binding pattern matches the routing key.
	Topic ExchangeKind = "topic"
)

type binding struct {
	queue   string
	pattern string
}

type exchange struct {
	kind     ExchangeKind
	bindings []binding
}

// Topology holds the declared exchanges and their queue bindings.
// Declarations happen at startup; Route is safe for concurrent use.
type Topology struct {
	mu        sync.RWMutex
	exchanges map[string]*exchange
}

func NewTopology() *Topology {
	return &Topology{exchanges: make(map[string]*exchange)}
}

func (t *Topology) DeclareExchange(name string, kind ExchangeKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ex, ok := t.exchanges[name]; ok {
		if ex.kind != kind {
			return fmt.Errorf("exchange %q already declared as %s", name, ex.kind)
		}
		return nil
	}
	t.exchanges[name] = &exchange{kind: kind}
	return nil
}

// Bind attaches a queue to an exchange. The pattern is only consulted for
// topic exchanges; fanout bindings ignore it.
func (t *Topology) Bind(exchangeName, queue, pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ex, ok := t.exchanges[exchangeName]
	if !ok {
		return fmt.Errorf("exchange %q is not declared", exchangeName)
	}
	ex.bindings = append(ex.bindings, binding{queue: queue, pattern: pattern})
	return nil
}

// Route returns the queues that should receive a message published to the
// exchange with the given routing key. A fanout exchange returns every
// bound queue; a topic exchange returns the queues whose pattern matches.
func (t *Topology) Route(exchangeName, routingKey string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ex, ok := t.exchanges[exchangeName]
	if !ok {
		return nil, fmt.Errorf("exchange %q is not declared", exchangeName)
	}

	var queues []string
	seen := make(map[string]struct{})
	for _, b := range ex.bindings {
		if ex.kind == Topic && !MatchTopic(b.pattern, routingKey) {
			continue
		}
		if _, dup := seen[b.queue]; dup {
			continue
		}
		seen[b.queue] = struct{}{}
		queues = append(queues, b.queue)
	}
	return queues, nil
}

// Queues returns every queue bound to any exchange.
func (t *Topology) Queues() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{})
	var queues []string
	for _, ex := range t.exchanges {
		for _, b := range ex.bindings {
			if _, dup := seen[b.queue]; dup {
				continue
			}
			seen[b.queue] = struct{}{}
			queues = append(queues, b.queue)
		}
	}
	return queues
}

// ExchangePublisher routes a message through the topology and appends a
// copy to each matched queue on the underlying transport.
type ExchangePublisher struct {
	topology  *Topology
	transport Publisher
	log       *slog.Logger
}

func NewExchangePublisher(topology *Topology, transport Publisher, log *slog.Logger) *ExchangePublisher {
	return &ExchangePublisher{topology: topology, transport: transport, log: log}
}

func (p *ExchangePublisher) Publish(ctx context.Context, exchangeName, routingKey string, body []byte) error {
	queues, err := p.topology.Route(exchangeName, routingKey)
	if err != nil {
		return err
	}

	for _, queue := range queues {
		if err := p.transport.Publish(ctx, queue, body); err != nil {
			return fmt.Errorf("publish to queue %q: %w", queue, err)
		}
	}

	p.log.Info("message routed",
		"exchange", exchangeName, "routing_key", routingKey, "queues", len(queues))
	return nil
}
