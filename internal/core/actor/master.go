package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "paneldash/internal/adapter/actor"
	"paneldash/internal/config"
	"paneldash/internal/core/domain"
	. "paneldash/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type RestActorProvider func() *adactor.RestActor

type CoordinatorActorProvider func(restActor *actor.PID, eventStream *eventstream.EventStream) actor.Actor

// MasterActor supervises the rest and coordinator children, fans out
// health checks and routes dashboard intents and link transitions to the
// coordinator.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	restActor          *actor.PID
	coordinatorActor   *actor.PID

	restActorProvider        RestActorProvider
	coordinatorActorProvider CoordinatorActorProvider
	logger                   *zap.Logger
}

type healthCheckResult struct {
	restActorHealthy        bool
	coordinatorActorHealthy bool
	coordinatorState        string
	checksReceived          int
	respondTo               *actor.PID
}

func NewMasterActor(config config.Config, eventStream *eventstream.EventStream,
	restActorProvider RestActorProvider, coordinatorActorProvider CoordinatorActorProvider,
	logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:                   config,
		behavior:                 actor.NewBehavior(),
		stash:                    &Stash{},
		logger:                   ActorLogger("master", logger),
		eventStream:              eventStream,
		restActorProvider:        restActorProvider,
		coordinatorActorProvider: coordinatorActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		restActorPID, err := state.startRestActor(ctx)
		if err != nil {
			panic(err)
		}
		state.restActor = restActorPID

		coordinatorActorPID, err := state.startCoordinatorActor(ctx)
		if err != nil {
			panic(err)
		}
		state.coordinatorActor = coordinatorActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.restActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_REST,
				Healthy: false,
			}
		})
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.coordinatorActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_COORDINATOR,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.WifiUp, domain.WifiDown:
		state.logger.Debug("master@default link transition", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.Send(state.coordinatorActor, msg)
	case domain.DashboardRequest:
		state.logger.Debug("master@default dashboard request", zap.String("type", fmt.Sprintf("%T", msg)))
		ctx.RequestWithCustomSender(state.coordinatorActor, msg, ctx.Sender())
	case *actor.Terminated:
		// if the rest child fails on boot, terminate
		if msg.Who.GetId() == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_REST) {
			state.logger.Error("master@default rest child terminated")
			panic(errors.New("rest actor terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a silent child counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			if msg.Id == domain.ACTOR_ID_REST {
				state.currentHealthCheck.restActorHealthy = true
			} else if msg.Id == domain.ACTOR_ID_COORDINATOR {
				state.currentHealthCheck.coordinatorActorHealthy = true
				state.currentHealthCheck.coordinatorState = msg.State
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) startRestActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	restProps := actor.PropsFromProducer(func() actor.Actor {
		return state.restActorProvider()
	}, actor.WithSupervisor(supervisor))
	restActorPID, err := ctx.SpawnNamed(restProps, domain.ACTOR_ID_REST)
	if err != nil {
		return nil, err
	}

	return restActorPID, nil
}

func (state *MasterActor) startCoordinatorActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return state.coordinatorActorProvider(state.restActor, state.eventStream)
	}, actor.WithSupervisor(supervisor))
	coordinatorActorPID, err := ctx.SpawnNamed(coordinatorProps, domain.ACTOR_ID_COORDINATOR)
	if err != nil {
		return nil, err
	}

	return coordinatorActorPID, nil
}

func (state *healthCheckResult) reset() {
	state.restActorHealthy = false
	state.coordinatorActorHealthy = false
	state.coordinatorState = ""
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 2
}

func (state *healthCheckResult) allHealthy() bool {
	return state.restActorHealthy && state.coordinatorActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
		State:   state.coordinatorState,
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
