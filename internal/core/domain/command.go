package domain

import "fmt"

// DashboardRequest

type DashboardRequest interface {
	ActorRequest
	DashboardCommand() string
}

type DashboardRequestMixIn struct {
	ActorRequestMixIn
}

func (r DashboardRequestMixIn) DashboardCommand() string {
	return fmt.Sprintf("%T", r)
}

// Touch-originated commands

type SwitchCommandRequest struct {
	DashboardRequestMixIn
	EntityID string
	On       bool
}

type SwitchCommandResponse struct {
	ActorResponseMixIn
}

type SceneTriggerRequest struct {
	DashboardRequestMixIn
}

type SceneTriggerResponse struct {
	ActorResponseMixIn
}

type ForceSyncRequest struct {
	DashboardRequestMixIn
}

// Link edges from the Wi-Fi lifecycle

type WifiUp struct{}

type WifiDown struct{}
