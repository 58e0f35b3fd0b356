package messaging

import (
	"context"
)

// NopBroker discards every publish. It stands in for Redis when the
// broker is unreachable at startup or in hermetic tests, keeping event
// publishing best-effort without a nil check at every call site.
type NopBroker struct{}

func NewNopBroker() *NopBroker {
	return &NopBroker{}
}

func (NopBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return nil
}

func (NopBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (NopBroker) Close() error {
	return nil
}
