package domain

import "paneldash/internal/entity"

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_REST        = "rest"
	ACTOR_ID_COORDINATOR = "coordinator"
)

type GetAllEntityStatesRequest struct {
	ActorRequestMixIn
}

type GetAllEntityStatesResponse struct {
	ActorResponseMixIn
	Payload []byte
}

type GetEntityStateRequest struct {
	ActorRequestMixIn
	EntityID string
}

type GetEntityStateResponse struct {
	ActorResponseMixIn
	EntityID string
	State    *entity.State
}

type CallServiceRequest struct {
	ActorRequestMixIn
	Domain   string
	Service  string
	EntityID string
}

type CallServiceResponse struct {
	ActorResponseMixIn
	Domain   string
	Service  string
	EntityID string
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
