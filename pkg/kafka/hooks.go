package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ConsumerHook observes message handling. BeforeHandle may rewrite the
// context, record or payload; a non-nil error skips the handler and sends
// the message down the error path.
type ConsumerHook interface {
	BeforeHandle(ctx context.Context, topic string, record kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error)
	AfterHandle(ctx context.Context, topic string, record kafka.Message, data []byte, err error)
	OnError(ctx context.Context, topic string, record kafka.Message, data []byte, err error)
}

// NoopHook is the default hook.
type NoopHook struct{}

func (NoopHook) BeforeHandle(ctx context.Context, topic string, record kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	return ctx, record, data, nil
}

func (NoopHook) AfterHandle(context.Context, string, kafka.Message, []byte, error) {}

func (NoopHook) OnError(context.Context, string, kafka.Message, []byte, error) {}

// HookFuncs adapts plain functions to ConsumerHook; nil members are no-ops.
type HookFuncs struct {
	Before func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error)
	After  func(context.Context, string, kafka.Message, []byte, error)
	Err    func(context.Context, string, kafka.Message, []byte, error)
}

func (h HookFuncs) BeforeHandle(ctx context.Context, topic string, record kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if h.Before == nil {
		return ctx, record, data, nil
	}
	return h.Before(ctx, topic, record, data)
}

func (h HookFuncs) AfterHandle(ctx context.Context, topic string, record kafka.Message, data []byte, err error) {
	if h.After != nil {
		h.After(ctx, topic, record, data, err)
	}
}

func (h HookFuncs) OnError(ctx context.Context, topic string, record kafka.Message, data []byte, err error) {
	if h.Err != nil {
		h.Err(ctx, topic, record, data, err)
	}
}
