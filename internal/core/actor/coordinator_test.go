package actor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"paneldash/internal/config"
	"paneldash/internal/core/domain"
	"paneldash/internal/core/service"
	"paneldash/internal/entity"
	"paneldash/internal/ha"
	"paneldash/internal/mem"
	"paneldash/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubRestActor stands in for the REST adapter with canned replies.
type stubRestActor struct {
	mu           sync.Mutex
	bulkPayload  []byte
	bulkErr      error
	perEntity    map[string]entity.State
	perEntityErr error
	serviceCalls []domain.CallServiceRequest
}

func (s *stubRestActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetAllEntityStatesRequest:
		s.mu.Lock()
		payload, err := s.bulkPayload, s.bulkErr
		s.mu.Unlock()
		if err != nil {
			ctx.Respond(domain.GetAllEntityStatesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			})
			return
		}
		ctx.Respond(domain.GetAllEntityStatesResponse{Payload: payload})
	case domain.GetEntityStateRequest:
		s.mu.Lock()
		st, ok := s.perEntity[msg.EntityID]
		err := s.perEntityErr
		s.mu.Unlock()
		if err != nil {
			ctx.Respond(domain.GetEntityStateResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				EntityID:           msg.EntityID,
			})
			return
		}
		resp := domain.GetEntityStateResponse{EntityID: msg.EntityID}
		if ok {
			resp.State = &st
		}
		ctx.Respond(resp)
	case domain.CallServiceRequest:
		s.mu.Lock()
		s.serviceCalls = append(s.serviceCalls, msg)
		s.mu.Unlock()
		ctx.Respond(domain.CallServiceResponse{
			Domain:   msg.Domain,
			Service:  msg.Service,
			EntityID: msg.EntityID,
		})
	}
}

func (s *stubRestActor) calls() []domain.CallServiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CallServiceRequest, len(s.serviceCalls))
	copy(out, s.serviceCalls)
	return out
}

func coordinatorTestConfig() *config.Config {
	return &config.Config{
		HomeAssistant: config.HAConfig{
			Host:               "ha.local",
			Port:               8123,
			PollIntervalMillis: 60000,
			Entities: config.EntityConfig{
				SwitchA: "switch.desk_lamp",
				SwitchB: "switch.fan",
				SwitchC: "switch.heater",
				Scene:   "scene.movie",
			},
		},
	}
}

type coordinatorFixture struct {
	as      *actor.ActorSystem
	context *actor.RootContext
	pid     *actor.PID
	stub    *stubRestActor
	cache   *entity.Cache
	status  *service.StatusTracker
	worker  *entity.Worker
}

func spawnCoordinator(t *testing.T, stub *stubRestActor) *coordinatorFixture {
	t.Helper()
	return spawnCoordinatorWith(t, stub, nil)
}

func spawnCoordinatorWith(t *testing.T, stub *stubRestActor, worker *entity.Worker) *coordinatorFixture {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())
	cfg := coordinatorTestConfig()
	alloc := mem.NewExternal(0)

	cache := entity.NewCache(cfg.HomeAssistant.Entities.SwitchIDs())
	if worker == nil {
		worker = entity.NewWorker(alloc, nil, logger)
	}
	status := service.NewStatusTracker(logger)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	restPid := context.Spawn(actor.PropsFromProducer(func() actor.Actor { return stub }))

	es := &eventstream.EventStream{}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, restPid, es, cache, worker, status, alloc, nil, logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	t.Cleanup(func() {
		context.Stop(pid)
		as.Shutdown()
	})
	return &coordinatorFixture{as: as, context: context, pid: pid, stub: stub, cache: cache, status: status, worker: worker}
}

// bigBulkPayload pads the three switches with filler sensors until the
// payload crosses size bytes.
func bigBulkPayload(size int) []byte {
	var b strings.Builder
	b.WriteString(`[`)
	b.WriteString(`{"entity_id": "switch.desk_lamp", "state": "on", "attributes": {"friendly_name": "Desk Lamp"}},`)
	b.WriteString(`{"entity_id": "switch.fan", "state": "off", "attributes": {"friendly_name": "Fan"}},`)
	b.WriteString(`{"entity_id": "switch.heater", "state": "on", "attributes": {"friendly_name": "Heater"}}`)
	padding := strings.Repeat("x", 200)
	for i := 0; b.Len() < size; i++ {
		fmt.Fprintf(&b, `,{"entity_id": "sensor.filler_%d", "state": "%s", "attributes": {}}`, i, padding)
	}
	b.WriteString(`]`)
	return []byte(b.String())
}

func TestCoordinatorSyncCycleAppliesStates(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkPayload: []byte(`[
			{"entity_id": "switch.desk_lamp", "state": "on", "attributes": {"friendly_name": "Desk Lamp"}},
			{"entity_id": "switch.fan", "state": "off", "attributes": {"friendly_name": "Fan"}},
			{"entity_id": "switch.heater", "state": "on", "attributes": {"friendly_name": "Heater"}}
		]`),
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 5*time.Second, 50*time.Millisecond, "terminal status after full sync")

	lamp, ok := f.cache.Slot(config.SlotSwitchA)
	assert.True(ok)
	assert.True(lamp.IsOn(), "lamp state applied")
	fan, _ := f.cache.Slot(config.SlotSwitchB)
	assert.False(fan.IsOn(), "fan state applied")
}

func TestCoordinatorRoutesLargePayloadThroughWorker(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	worker := entity.NewWorker(mem.NewExternal(0), nil, logger)
	worker.Start()
	t.Cleanup(worker.Stop)

	payload := bigBulkPayload(48 * 1024)
	assert.Greater(len(payload), 16*1024)

	stub := &stubRestActor{bulkPayload: payload}
	f := spawnCoordinatorWith(t, stub, worker)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 10*time.Second, 50*time.Millisecond, "large payload still syncs")

	stats := f.worker.Stats()
	assert.Equal(uint64(1), stats.JobsProcessed, "the parse ran on the worker, not inline")
	assert.GreaterOrEqual(stats.LargestPayload, len(payload))

	lamp, ok := f.cache.Slot(config.SlotSwitchA)
	assert.True(ok)
	assert.True(lamp.IsOn())
}

func TestCoordinatorFallsBackToSyncParseWhenQueueFull(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	// never started, so both queue slots stay occupied
	worker := entity.NewWorker(mem.NewExternal(0), nil, logger)
	ids := []string{"switch.desk_lamp"}
	_, err := worker.Submit([]byte(`[]`), ids, make([]entity.State, 1))
	assert.NoError(err)
	_, err = worker.Submit([]byte(`[]`), ids, make([]entity.State, 1))
	assert.NoError(err)
	_, err = worker.Submit([]byte(`[]`), ids, make([]entity.State, 1))
	assert.ErrorIs(err, entity.ErrQueueFull)

	stub := &stubRestActor{bulkPayload: bigBulkPayload(48 * 1024)}
	f := spawnCoordinatorWith(t, stub, worker)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 10*time.Second, 50*time.Millisecond, "full queue degrades to a synchronous parse")

	assert.Equal(uint64(0), f.worker.Stats().JobsProcessed, "the queued jobs never ran")

	lamp, _ := f.cache.Slot(config.SlotSwitchA)
	assert.True(lamp.IsOn())
}

func TestCoordinatorPartialSyncWhenEntitiesMissing(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkPayload: []byte(`[{"entity_id": "switch.desk_lamp", "state": "on", "attributes": {}}]`),
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "Partial Sync"
	}, 5*time.Second, 50*time.Millisecond, "partial status when some entities missing")
}

func TestCoordinatorFallsBackToIndividualGets(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkErr: &ha.TransportError{Op: "GET /api/states", Err: errors.New("connection refused")},
		perEntity: map[string]entity.State{
			"switch.desk_lamp": {EntityID: "switch.desk_lamp", State: "on"},
			"switch.fan":       {EntityID: "switch.fan", State: "off"},
			"switch.heater":    {EntityID: "switch.heater", State: "on"},
		},
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 10*time.Second, 50*time.Millisecond, "fallback cycle completes")

	lamp, _ := f.cache.Slot(config.SlotSwitchA)
	assert.True(lamp.IsOn(), "fallback states applied")
}

func TestCoordinatorAbortsFallbackOnRepeatedTransportErrors(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkErr:      &ha.TransportError{Op: "GET /api/states", Err: errors.New("connection refused")},
		perEntityErr: &ha.TransportError{Op: "GET /api/states/x", Err: errors.New("connection refused")},
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "Sync Failed"
	}, 10*time.Second, 50*time.Millisecond, "early abort surfaces failure")
}

func TestCoordinatorSwitchCommand(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkPayload: []byte(`[
			{"entity_id": "switch.desk_lamp", "state": "off", "attributes": {}},
			{"entity_id": "switch.fan", "state": "off", "attributes": {}},
			{"entity_id": "switch.heater", "state": "off", "attributes": {}}
		]`),
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})
	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 5*time.Second, 50*time.Millisecond)

	f.context.Send(f.pid, domain.SwitchCommandRequest{EntityID: "switch.desk_lamp", On: true})

	assert.Eventually(func() bool {
		calls := f.stub.calls()
		return len(calls) == 1 &&
			calls[0].Domain == "switch" &&
			calls[0].Service == "turn_on" &&
			calls[0].EntityID == "switch.desk_lamp"
	}, 5*time.Second, 50*time.Millisecond, "service call on the wire")

	assert.Eventually(func() bool {
		return f.status.Text() == "Ready"
	}, 5*time.Second, 50*time.Millisecond, "ready again after the call completes")
}

func TestCoordinatorSceneTrigger(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{
		bulkPayload: []byte(`[
			{"entity_id": "switch.desk_lamp", "state": "off", "attributes": {}},
			{"entity_id": "switch.fan", "state": "off", "attributes": {}},
			{"entity_id": "switch.heater", "state": "off", "attributes": {}}
		]`),
	}
	f := spawnCoordinator(t, stub)

	f.context.Send(f.pid, domain.WifiUp{})
	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 5*time.Second, 50*time.Millisecond)

	f.context.Send(f.pid, domain.SceneTriggerRequest{})

	assert.Eventually(func() bool {
		calls := f.stub.calls()
		return len(calls) == 1 &&
			calls[0].Domain == "scene" &&
			calls[0].Service == "turn_on" &&
			calls[0].EntityID == "scene.movie"
	}, 5*time.Second, 50*time.Millisecond, "scene call on the wire")
}

func TestCoordinatorOfflineHealth(t *testing.T) {

	assert := assert.New(t)

	stub := &stubRestActor{bulkPayload: []byte(`[]`)}
	f := spawnCoordinator(t, stub)

	result, err := f.context.RequestFuture(f.pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ActorHealthResponse)
	assert.True(resp.Healthy)
	assert.Equal(domain.ACTOR_ID_COORDINATOR, resp.Id)
	assert.Equal(f.status.Current(), resp.State)
}
