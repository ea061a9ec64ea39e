package rest

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/soniqlabs/meetbot/pkg/stream"
)

type streamController struct {
	hub *stream.Hub
}

func NewStreamController(hub *stream.Hub) streamController {
	return streamController{hub: hub}
}

// Transcripts upgrades the connection and feeds it live caption segments.
// The meeting_id query parameter narrows the feed to one meeting.
func (sc *streamController) Transcripts(c echo.Context) error {
	room := c.QueryParam("meeting_id")
	if room == "" {
		room = stream.RoomAll
	}

	conn, err := stream.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	sc.hub.Register(room, conn)
	log.Debugf("transcript subscriber connected | room: %s", room)

	// Drain reads until the client goes away; writes come from the hub.
	go func() {
		defer sc.hub.Unregister(room, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}
