package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannel matches every *ChannelError.
var ErrChannel = errors.New("notification channel error")

// ErrNoChannels is returned by SendTest when nothing is configured.
var ErrNoChannels = errors.New("no notification channels configured")

// ChannelError reports a failed delivery attempt on one channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrChannel) true for any ChannelError.
func (e *ChannelError) Is(target error) bool { return target == ErrChannel }

func channelErr(name string, format string, args ...any) error {
	return &ChannelError{Channel: name, Err: fmt.Errorf(format, args...)}
}

// Channel delivers a message to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
