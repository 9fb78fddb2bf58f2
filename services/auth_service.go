package services

import "context"

// IdentityProvider emits the current user identity whenever it changes. An
// empty string means signed out. The engine re-subscribes the chat store and
// resets conversation state on every event.
type IdentityProvider interface {
	Identities(ctx context.Context) <-chan string
}

// StaticIdentityProvider serves deployments with one fixed user, such as the
// local DynamoDB dev setup. It emits the identity once and then stays
// silent until the context ends.
type StaticIdentityProvider struct {
	UserID string
}

func (p *StaticIdentityProvider) Identities(ctx context.Context) <-chan string {
	ch := make(chan string, 1)
	ch <- p.UserID
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
