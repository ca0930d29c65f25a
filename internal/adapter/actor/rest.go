package actor

import (
	"fmt"
	"time"

	"paneldash/internal/core/domain"
	"paneldash/internal/ha"
	"paneldash/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// restTaskTimeout covers the full retry budget of one client call.
const restTaskTimeout = 30 * time.Second

// RestActor wraps the blocking REST client. Requests run as background
// tasks so the mailbox never blocks on the wire; while one is in flight
// the actor stashes everything else.
type RestActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *ha.Client
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewRestActor(client *ha.Client, logger *zap.Logger) *RestActor {
	act := &RestActor{
		client:   client,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger("rest", logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *RestActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *RestActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("rest@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_REST,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetAllEntityStatesRequest:
		state.logger.Debug("rest@default: GetAllEntityStatesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getAllEntityStates),
			mapTaskResult[domain.GetAllEntityStatesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetAllEntityStatesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(restTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRest)
	case domain.GetEntityStateRequest:
		state.logger.Debug("rest@default: GetEntityStateRequest", zap.String("entity_id", msg.EntityID))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		entityID := msg.EntityID

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.GetEntityStateResponse, error) {
			return state.getEntityState(entityID)
		}),
			mapTaskResult[domain.GetEntityStateResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetEntityStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					EntityID: entityID,
				},
				replyTo: sender,
			}
		}).WithTimeout(restTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRest)
	case domain.CallServiceRequest:
		state.logger.Debug("rest@default: CallServiceRequest",
			zap.String("domain", msg.Domain), zap.String("service", msg.Service), zap.String("entity_id", msg.EntityID))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		req := msg

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.CallServiceResponse, error) {
			return state.callService(req)
		}),
			mapTaskResult[domain.CallServiceResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.CallServiceResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Domain:   req.Domain,
					Service:  req.Service,
					EntityID: req.EntityID,
				},
				replyTo: sender,
			}
		}).WithTimeout(restTaskTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingRest)
	default:
		state.logger.Debug("rest@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *RestActor) WaitingRest(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("rest@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("rest@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *RestActor) getAllEntityStates() (*domain.GetAllEntityStatesResponse, error) {
	payload, err := a.client.GetAllEntities()
	if err != nil {
		a.logger.Error("bulk GET failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetAllEntityStatesResponse{
		Payload: payload,
	}, nil
}

func (a *RestActor) getEntityState(entityID string) (*domain.GetEntityStateResponse, error) {
	st, err := a.client.GetEntity(entityID)
	if err != nil {
		a.logger.Error("entity GET failed", zap.String("entity_id", entityID), zap.Error(err))
		return nil, err
	}
	return &domain.GetEntityStateResponse{
		EntityID: entityID,
		State:    &st,
	}, nil
}

func (a *RestActor) callService(req domain.CallServiceRequest) (*domain.CallServiceResponse, error) {
	err := a.client.CallService(req.Domain, req.Service, req.EntityID, nil)
	if err != nil {
		a.logger.Error("service call failed",
			zap.String("domain", req.Domain), zap.String("service", req.Service), zap.Error(err))
		return nil, err
	}
	return &domain.CallServiceResponse{
		Domain:   req.Domain,
		Service:  req.Service,
		EntityID: req.EntityID,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
