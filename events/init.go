package events

import "github.com/r3labs/sse/v2"

// PresenceStream is the SSE stream name clients subscribe to with ?stream=presence.
const PresenceStream = "presence"

var Server *sse.Server

func Init() {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(PresenceStream)
	Server = server
}
