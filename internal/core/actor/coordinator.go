package actor

import (
	"fmt"
	"time"

	"paneldash/internal/config"
	"paneldash/internal/core/domain"
	"paneldash/internal/core/events"
	"paneldash/internal/core/service"
	"paneldash/internal/entity"
	"paneldash/internal/ha"
	"paneldash/internal/mem"
	"paneldash/internal/metrics"
	. "paneldash/internal/util/actorutil"
	"paneldash/internal/watchdog"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	// syncThreshold routes bulk payloads: at or below it the parse runs
	// on the coordinator's background task directly, above it the job
	// goes through the parse worker queue.
	syncThreshold = 16 * 1024

	defaultPollInterval = 30 * time.Second

	// pacing between individual-GET fallback requests
	fallbackPaceOk   = 100 * time.Millisecond
	fallbackPaceFail = 250 * time.Millisecond

	// consecutive transport failures that abort a fallback cycle early
	fallbackAbortAfter = 2

	restRequestTimeout = 35 * time.Second
	parseWaitBudget    = 30 * time.Second
)

type syncTick struct{}

type fallbackNext struct{}

type parseDone struct {
	states []entity.State
	found  int
	err    error
}

// CoordinatorActor drives periodic reconciliation between the remote
// server and the local cache/UI, and turns touch intents into service
// calls. It runs only while the Wi-Fi link is up.
type CoordinatorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	cfg         *config.Config
	restActor   *actor.PID
	eventStream *eventstream.EventStream
	cache       *entity.Cache
	worker      *entity.Worker
	status      *service.StatusTracker
	alloc       mem.Allocator
	keepalive   watchdog.Keepalive

	tickCancel scheduler.CancelFunc
	running    bool

	// individual-GET fallback cycle state
	fallbackIdx      int
	fallbackStates   []entity.State
	fallbackFailures int

	logger *zap.Logger
}

func NewCoordinatorActor(cfg *config.Config, restActor *actor.PID, eventStream *eventstream.EventStream,
	cache *entity.Cache, worker *entity.Worker, status *service.StatusTracker,
	alloc mem.Allocator, keepalive watchdog.Keepalive, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		cfg:         cfg,
		restActor:   restActor,
		eventStream: eventStream,
		cache:       cache,
		worker:      worker,
		status:      status,
		alloc:       alloc,
		keepalive:   keepalive,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger("coordinator", logger),
	}
	act.behavior.Become(act.OfflineReceive)
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CoordinatorActor) pollInterval() time.Duration {
	if state.cfg.HomeAssistant.PollIntervalMillis > 0 {
		return time.Duration(state.cfg.HomeAssistant.PollIntervalMillis) * time.Millisecond
	}
	return defaultPollInterval
}

func (state *CoordinatorActor) feed() {
	if state.keepalive != nil {
		state.keepalive()
	}
}

// OfflineReceive is the idle state before the first Wi-Fi up and after
// any link drop.
func (state *CoordinatorActor) OfflineReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("coordinator@offline started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COORDINATOR,
			Healthy: true,
			State:   state.status.Current(),
		})
	case domain.WifiUp:
		state.logger.Info("coordinator@offline wifi up, starting sync loop")
		state.running = true
		state.status.MarkReady()
		state.behavior.Become(state.DefaultReceive)
		ctx.Send(ctx.Self(), syncTick{})
	case domain.WifiDown, syncTick:
		// already offline
	default:
		state.logger.Debug("coordinator@offline drop", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CoordinatorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_COORDINATOR,
			Healthy: true,
			State:   state.status.Current(),
		})
	case domain.WifiDown:
		state.goOffline()
	case syncTick:
		state.logger.Debug("coordinator@default tick")
		state.feed()
		state.status.MarkSyncing()
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.restActor, domain.GetAllEntityStatesRequest{}, restRequestTimeout), func(err error) any {
			return domain.GetAllEntityStatesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingSyncReceive)
	case domain.SwitchCommandRequest:
		state.handleSwitchCommand(ctx, msg)
	case domain.SceneTriggerRequest:
		state.handleSceneTrigger(ctx)
	case domain.ForceSyncRequest:
		ctx.Send(ctx.Self(), syncTick{})
	case domain.CallServiceResponse:
		state.handleServiceResponse(msg)
	default:
		state.logger.Debug("coordinator@default drop", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// WaitingSyncReceive holds the actor while a bulk poll and its parse are
// in flight.
func (state *CoordinatorActor) WaitingSyncReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetAllEntityStatesResponse:
		if msg.HasResponseError() {
			err := msg.GetResponseError()
			state.logger.Warn("coordinator@waiting bulk poll failed", zap.Error(err))
			if ha.Classify(err) == ha.KindTransport {
				state.startFallback(ctx)
				return
			}
			state.finishCycle(ctx, nil, 0, err)
			return
		}
		state.logger.Debug("coordinator@waiting bulk payload", zap.Int("size", len(msg.Payload)))
		state.startParse(ctx, msg.Payload)
	case parseDone:
		state.finishCycle(ctx, msg.states, msg.found, msg.err)
	case domain.GetEntityStateResponse:
		state.fallbackStep(ctx, msg)
	case fallbackNext:
		state.requestFallbackEntity(ctx)
	case domain.WifiDown:
		state.goOffline()
	default:
		state.logger.Debug("coordinator@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// startParse routes the payload by size: small bodies parse inline on a
// background task, large ones go through the worker queue. A full queue
// falls back to the synchronous path.
func (state *CoordinatorActor) startParse(ctx actor.Context, payload []byte) {
	ids := state.cache.IDs()
	keepalive := state.keepalive

	NewBackgroundTaskNoError(ctx, func() *parseDone {
		defer state.alloc.Put(payload)
		out := make([]entity.State, len(ids))

		if len(payload) > syncThreshold {
			handle, err := state.worker.Submit(payload, ids, out)
			if err == nil {
				found, werr := handle.Wait(parseWaitBudget, keepalive)
				return &parseDone{states: out, found: found, err: werr}
			}
			state.logger.Warn("async submit failed, parsing synchronously", zap.Error(err))
		}
		found, err := entity.ParseBulk(payload, ids, out, keepalive)
		return &parseDone{states: out, found: found, err: err}
	}).WithTimeout(parseWaitBudget + 5*time.Second).OnError(func(err error) {
		ctx.Send(ctx.Self(), parseDone{err: err})
	}).PipeTo(ctx.Self())
}

// finishCycle applies results, emits the terminal status, and schedules
// the next tick.
func (state *CoordinatorActor) finishCycle(ctx actor.Context, states []entity.State, found int, err error) {
	total := state.cache.Len()
	switch {
	case err != nil || found == 0:
		if err != nil {
			state.logger.Warn("sync cycle failed", zap.Error(err))
		} else {
			state.logger.Warn("sync cycle found no entities")
		}
		state.status.MarkFailed()
		metrics.SyncCyclesTotal.WithLabelValues("failed").Inc()
	case found < total:
		state.logger.Info("sync cycle partial", zap.Int("found", found), zap.Int("total", total))
		state.applyStates(states)
		state.status.MarkPartial()
		metrics.SyncCyclesTotal.WithLabelValues("partial").Inc()
	default:
		state.logger.Debug("sync cycle complete", zap.Int("found", found))
		state.applyStates(states)
		state.status.MarkSynced()
		metrics.SyncCyclesTotal.WithLabelValues("synced").Inc()
	}
	state.feed()
	state.scheduleNextTick(ctx)
	state.behavior.UnbecomeStacked()
	state.stash.UnstashAll(ctx)
}

func (state *CoordinatorActor) applyStates(states []entity.State) {
	state.cache.Apply(states)
	snapshot := state.cache.Snapshot()
	for _, ev := range events.SwitchStatesToUpdateEvents(states) {
		state.eventStream.Publish(ev)
	}
	state.eventStream.Publish(events.StatesSyncToEvent(snapshot))
}

func (state *CoordinatorActor) scheduleNextTick(ctx actor.Context) {
	if !state.running {
		return
	}
	if state.tickCancel != nil {
		state.tickCancel()
	}
	state.tickCancel = state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), syncTick{})
}

// startFallback begins the individual-GET recovery cycle after a bulk
// transport failure.
func (state *CoordinatorActor) startFallback(ctx actor.Context) {
	state.logger.Info("bulk poll failed, falling back to individual GETs")
	state.fallbackIdx = 0
	state.fallbackStates = make([]entity.State, state.cache.Len())
	state.fallbackFailures = 0
	state.requestFallbackEntity(ctx)
}

func (state *CoordinatorActor) requestFallbackEntity(ctx actor.Context) {
	ids := state.cache.IDs()
	if state.fallbackIdx >= len(ids) {
		found := 0
		for _, s := range state.fallbackStates {
			if s.Found() {
				found++
			}
		}
		state.finishCycle(ctx, state.fallbackStates, found, nil)
		return
	}
	id := ids[state.fallbackIdx]
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.restActor, domain.GetEntityStateRequest{EntityID: id}, restRequestTimeout), func(err error) any {
		return domain.GetEntityStateResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			EntityID: id,
		}
	})
}

func (state *CoordinatorActor) fallbackStep(ctx actor.Context, msg domain.GetEntityStateResponse) {
	pace := fallbackPaceOk
	if msg.HasResponseError() {
		err := msg.GetResponseError()
		state.logger.Warn("fallback GET failed", zap.String("entity_id", msg.EntityID), zap.Error(err))
		if ha.Classify(err) == ha.KindTransport {
			state.fallbackFailures++
			if state.fallbackFailures >= fallbackAbortAfter {
				state.logger.Warn("consecutive transport failures, aborting fallback cycle early")
				state.finishCycle(ctx, nil, 0, err)
				return
			}
		}
		pace = fallbackPaceFail
	} else {
		state.fallbackFailures = 0
		if msg.State != nil {
			state.fallbackStates[state.fallbackIdx] = *msg.State
		}
	}
	state.fallbackIdx++
	state.feed()
	state.scheduler.RequestOnce(pace, ctx.Self(), fallbackNext{})
}

func (state *CoordinatorActor) handleSwitchCommand(ctx actor.Context, msg domain.SwitchCommandRequest) {
	svc := "turn_off"
	if msg.On {
		svc = "turn_on"
	}
	state.logger.Info("switch intent", zap.String("entity_id", msg.EntityID), zap.Bool("on", msg.On))
	state.status.MarkSyncing()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.restActor, domain.CallServiceRequest{
		Domain:   "switch",
		Service:  svc,
		EntityID: msg.EntityID,
	}, restRequestTimeout), func(err error) any {
		return domain.CallServiceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Domain:   "switch",
			Service:  svc,
			EntityID: msg.EntityID,
		}
	})
}

func (state *CoordinatorActor) handleSceneTrigger(ctx actor.Context) {
	sceneID := state.cfg.HomeAssistant.Entities.Scene
	if sceneID == "" {
		state.logger.Warn("scene trigger with no scene configured")
		return
	}
	state.logger.Info("scene intent", zap.String("entity_id", sceneID))
	state.status.MarkSyncing()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.restActor, domain.CallServiceRequest{
		Domain:   "scene",
		Service:  "turn_on",
		EntityID: sceneID,
	}, restRequestTimeout), func(err error) any {
		return domain.CallServiceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Domain:   "scene",
			Service:  "turn_on",
			EntityID: sceneID,
		}
	})
}

// handleServiceResponse closes out a touch-originated call. Failure
// surfaces SyncFailed but never reverts the visual toggle; the next poll
// is authoritative.
func (state *CoordinatorActor) handleServiceResponse(msg domain.CallServiceResponse) {
	if msg.HasResponseError() {
		state.logger.Warn("service call failed",
			zap.String("entity_id", msg.EntityID), zap.Error(msg.GetResponseError()))
		state.status.MarkFailed()
		return
	}
	state.logger.Debug("service call ok", zap.String("entity_id", msg.EntityID))
	state.status.MarkReady()
}

func (state *CoordinatorActor) goOffline() {
	state.logger.Info("coordinator wifi down, going offline")
	state.running = false
	if state.tickCancel != nil {
		state.tickCancel()
		state.tickCancel = nil
	}
	state.status.MarkOffline()
	state.behavior.Become(state.OfflineReceive)
}
