package eventbus

import "errors"

var (
	ErrLogRequired                = errors.New("eventbus: publication log is required")
	ErrEventRequired              = errors.New("eventbus: event is required")
	ErrTransactionRequired        = errors.New("eventbus: publish requires an active transaction")
	ErrEventTypeNotRegistered     = errors.New("eventbus: event type is not registered")
	ErrEventTypeAlreadyRegistered = errors.New("eventbus: event type already registered")
	ErrListenerAlreadyRegistered  = errors.New("eventbus: listener id already registered")
	ErrListenerNotRegistered      = errors.New("eventbus: listener is not registered")
	ErrListenerIDRequired         = errors.New("eventbus: listener id is required")
	ErrEnvelopeRequired           = errors.New("eventbus: envelope is required")
	ErrHandlerPanicked            = errors.New("eventbus: handler panicked")
	ErrEventShapeMismatch         = errors.New("eventbus: event does not satisfy listener's subscribed type")
)
