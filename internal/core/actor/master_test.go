package actor

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	adactor "paneldash/internal/adapter/actor"
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

func masterTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/states":
			_, _ = w.Write([]byte(`[
				{"entity_id": "switch.desk_lamp", "state": "on", "attributes": {}},
				{"entity_id": "switch.fan", "state": "off", "attributes": {}},
				{"entity_id": "switch.heater", "state": "off", "attributes": {}}
			]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func masterTestConfig(t *testing.T, srv *httptest.Server) config.Config {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return config.Config{
		HomeAssistant: config.HAConfig{
			Host:                 u.Hostname(),
			Port:                 uint(port),
			Token:                "test-token",
			RequestTimeoutMillis: 2000,
			MaxResponseSize:      64 * 1024,
			RetryCount:           1,
			PollIntervalMillis:   60000,
			Entities: config.EntityConfig{
				SwitchA: "switch.desk_lamp",
				SwitchB: "switch.fan",
				SwitchC: "switch.heater",
				Scene:   "scene.movie",
			},
		},
	}
}

type masterFixture struct {
	context *actor.RootContext
	pid     *actor.PID
	cache   *entity.Cache
	status  *service.StatusTracker
}

func spawnMaster(t *testing.T) *masterFixture {
	t.Helper()

	srv := masterTestServer(t)
	cfg := masterTestConfig(t, srv)

	logger := zap.Must(zap.NewDevelopment())
	alloc := mem.NewExternal(0)

	client, err := ha.NewClient(cfg.HomeAssistant, logger)
	if err != nil {
		t.Fatal(err)
	}

	cache := entity.NewCache(cfg.HomeAssistant.Entities.SwitchIDs())
	worker := entity.NewWorker(alloc, nil, logger)
	status := service.NewStatusTracker(logger)

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := &eventstream.EventStream{}

	restProvider := func() *adactor.RestActor {
		return adactor.NewRestActor(client, logger)
	}
	coordProvider := func(restActor *actor.PID, stream *eventstream.EventStream) actor.Actor {
		return NewCoordinatorActor(&cfg, restActor, stream, cache, worker, status, alloc, nil, logger)
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, es, restProvider, coordProvider, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(1 * time.Second)

	t.Cleanup(func() {
		context.Stop(pid)
		as.Shutdown()
	})
	return &masterFixture{context: context, pid: pid, cache: cache, status: status}
}

func TestMasterActorHealthCheck(t *testing.T) {

	assert := assert.New(t)

	f := spawnMaster(t)

	result, err := f.context.RequestFuture(f.pid, domain.ActorHealthRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ActorHealthResponse)

	assert.Equal(domain.ACTOR_ID_MASTER, resp.Id, "health response id")
	assert.True(resp.Healthy, "both children healthy")
	assert.Equal(service.StatusOffline, resp.State, "coordinator idle before wifi up")
}

func TestMasterActorRoutesLinkAndIntents(t *testing.T) {

	assert := assert.New(t)

	f := spawnMaster(t)

	f.context.Send(f.pid, domain.WifiUp{})

	assert.Eventually(func() bool {
		return f.status.Text() == "States Synced"
	}, 10*time.Second, 50*time.Millisecond, "link edge reaches the coordinator and syncs")

	lamp, ok := f.cache.Slot(config.SlotSwitchA)
	assert.True(ok)
	assert.True(lamp.IsOn(), "state applied through the full pipeline")

	// a forced sync routes through as a dashboard intent
	f.context.Send(f.pid, domain.ForceSyncRequest{})
	time.Sleep(500 * time.Millisecond)
	assert.True(f.status.IsReady(), "still ready after forced sync")

	f.context.Send(f.pid, domain.WifiDown{})
	assert.Eventually(func() bool {
		return f.status.Text() == "Offline"
	}, 5*time.Second, 50*time.Millisecond, "link drop takes the coordinator offline")
}
