package server

import (
	"net/http"
	"time"

	"paneldash/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/crashlog", s.CrashLogHandler)
	e.POST("/sync", s.ForceSyncHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	// no coordinator in dashboard-only mode, the process itself is fine
	if s.masterActor == nil {
		return c.String(http.StatusOK, "health_check: OK")
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type statusResponse struct {
	Status    string       `json:"status"`
	Text      string       `json:"text"`
	Ready     bool         `json:"ready"`
	Wifi      wifiStatus   `json:"wifi"`
	Dashboard any          `json:"dashboard,omitempty"`
	Parser    parserStatus `json:"parser"`
}

type wifiStatus struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	RSSI      int    `json:"rssi,omitempty"`
	IP        string `json:"ip,omitempty"`
}

type parserStatus struct {
	JobsProcessed  uint64 `json:"jobs_processed"`
	EntitiesFound  uint64 `json:"entities_found"`
	AvgParseMillis int64  `json:"avg_parse_millis"`
	LargestPayload int    `json:"largest_payload"`
}

func (s *Server) StatusHandler(c echo.Context) error {
	link := s.wifi.Status()
	stats := s.parser.Stats()

	resp := statusResponse{
		Status: s.status.Current(),
		Text:   s.status.Text(),
		Ready:  s.status.IsReady(),
		Wifi: wifiStatus{
			State:     s.wifi.State(),
			Connected: link.Connected,
			SSID:      link.SSID,
			RSSI:      link.RSSI,
			IP:        link.IP,
		},
		Parser: parserStatus{
			JobsProcessed:  stats.JobsProcessed,
			EntitiesFound:  stats.EntitiesFound,
			AvgParseMillis: stats.AvgParseTime.Milliseconds(),
			LargestPayload: stats.LargestPayload,
		},
	}
	if snap, ok := s.dashboard.Snapshot(); ok {
		resp.Dashboard = snap
	}
	return c.JSON(http.StatusOK, resp)
}

type crashEntryResponse struct {
	RecordedAt  time.Time `json:"recorded_at"`
	UptimeS     int64     `json:"uptime_s"`
	Reason      string    `json:"reason"`
	FreeHeap    uint64    `json:"free_heap"`
	MinFreeHeap uint64    `json:"min_free_heap"`
}

func (s *Server) CrashLogHandler(c echo.Context) error {
	entries, err := s.crashStore.List(c.Request().Context())
	if err != nil {
		return c.String(http.StatusInternalServerError, "crashlog: FAIL")
	}
	out := make([]crashEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, crashEntryResponse{
			RecordedAt:  e.Timestamp,
			UptimeS:     int64(e.Uptime / time.Second),
			Reason:      e.Reason,
			FreeHeap:    e.FreeHeap,
			MinFreeHeap: e.MinFreeHeap,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) ForceSyncHandler(c echo.Context) error {
	if s.masterActor == nil {
		return c.String(http.StatusServiceUnavailable, "sync: unavailable")
	}
	s.rootContext.Send(s.masterActor, domain.ForceSyncRequest{})
	return c.String(http.StatusAccepted, "sync: scheduled")
}
