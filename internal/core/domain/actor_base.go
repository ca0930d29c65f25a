package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef decouples message types from the actor runtime's PID type.
type ActorRef actor.PID

// ActorRequest is any message that may carry an explicit reply target.
// When ReplyTo is nil the receiver answers the runtime sender instead.
type ActorRequest interface {
	ReplyTo() *ActorRef
}

// ActorResponse is any reply that can carry a request-scoped error.
type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}
