package chat

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the Redis channel every instance listens on.
const InvalidationChannel = "chattour:invalidate"

// RedisNotifier fans invalidations out to every server instance.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	return n.redis.Publish(ctx, InvalidationChannel, topic).Err()
}

// Subscribe listens for invalidations until ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context) <-chan string {
	pubsub := n.redis.Subscribe(ctx, InvalidationChannel)
	out := make(chan string)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// MemoryNotifier delivers invalidations inside one process.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs []chan string
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Publish(ctx context.Context, topic string) error {
	n.mu.Lock()
	subs := append([]chan string{}, n.subs...)
	n.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- topic:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context) <-chan string {
	ch := make(chan string, 64)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, s := range n.subs {
			if s == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
	}()
	return ch
}

// Subscribers reports how many listeners are attached.
func (n *MemoryNotifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
