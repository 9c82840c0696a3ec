package metrics

// Provider receives bus instrumentation. Noop is used when metrics are off.
type Provider interface {
	MessageSent(channel string)
	MessagePublished(channel string)
	PublishFailed(channel string)
	MessageReceived(channel string)
	MessageDropped(reason string)
	HandlerFailed(channel string)
	Reconnected()
	SetQueueDepth(depth int)
	SetState(state int)
}

type Noop struct{}

func (Noop) MessageSent(string)      {}
func (Noop) MessagePublished(string) {}
func (Noop) PublishFailed(string)    {}
func (Noop) MessageReceived(string)  {}
func (Noop) MessageDropped(string)   {}
func (Noop) HandlerFailed(string)    {}
func (Noop) Reconnected()            {}
func (Noop) SetQueueDepth(int)       {}
func (Noop) SetState(int)            {}
