package server

import (
	"fmt"
	"net/http"
	"time"

	"paneldash/internal/config"
	"paneldash/internal/core/service"
	"paneldash/internal/crashlog"
	"paneldash/internal/entity"
	"paneldash/internal/ui"
	"paneldash/internal/wifi"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID

	dashboard  *ui.Dashboard
	status     *service.StatusTracker
	wifi       *wifi.Manager
	parser     *entity.Worker
	crashStore *crashlog.Store
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	dashboard *ui.Dashboard, status *service.StatusTracker, wifiManager *wifi.Manager,
	parser *entity.Worker, crashStore *crashlog.Store) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		dashboard:   dashboard,
		status:      status,
		wifi:        wifiManager,
		parser:      parser,
		crashStore:  crashStore,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
