package channel

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyBound   = errors.New("channel already bound for this role")
	ErrClosed         = errors.New("channel closed")
	ErrWrongRole      = errors.New("operation not valid for this role")
	ErrInvalidChannel = errors.New("invalid channel name")
)

// Bind steps, named after the entity that failed to come up.
const (
	StepRegisterType = "register_type"
	StepCreateTopic  = "create_topic"
	StepCreateWriter = "create_datawriter"
	StepCreateReader = "create_datareader"
)

// BindError reports a failed Open. It is fatal at startup.
type BindError struct {
	Channel string
	Role    Role
	Step    string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s() %s %s failed: %v", e.Step, e.Channel, e.Role, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// SendError reports a write the transport did not accept.
type SendError struct {
	Channel string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on %s failed: %v", e.Channel, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// ReceiveError reports a failed drain of a reader.
type ReceiveError struct {
	Channel string
	Err     error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive on %s failed: %v", e.Channel, e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }
