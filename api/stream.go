package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

const heartbeatInterval = 30 * time.Second

// streamProgress relays the progress events of one session as server-sent
// events until the client goes away or another stream of the same user takes
// the session over. A session belongs to the first user that touched it.
func (h *handlers) streamProgress(c echo.Context) error {
	userID, err := authorize(c, h.Auth, true)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if h.Progress == nil {
		return c.String(http.StatusServiceUnavailable, "progress streaming is not configured")
	}
	sessionID := c.Param("session")
	if sessionID == "" {
		return c.String(http.StatusBadRequest, "missing session")
	}
	if h.Sessions != nil {
		owned, berr := h.Sessions.Bind(c.Request().Context(), sessionID, userID)
		if berr != nil {
			h.Logger.WithError(berr).WithField("session", sessionID).Error("session ownership check failed")
			return c.String(http.StatusServiceUnavailable, "session ownership unavailable")
		}
		if !owned {
			return c.String(http.StatusForbidden, "session belongs to another user")
		}
	}

	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	events, cancel := h.Progress.Register(sessionID)
	defer cancel()

	hello := domain.ProgressEvent{SessionID: sessionID, Kind: domain.ProgressConnected, Message: "connected", Timestamp: time.Now()}
	if err := writeEvent(res, hello); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return nil
			}
			if err := writeEvent(res, ev); err != nil {
				h.Logger.WithError(err).WithField("session", sessionID).Debug("progress stream closed")
				return nil
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := res.Write([]byte(":keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func writeEvent(res *echo.Response, ev domain.ProgressEvent) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')
	_, err = res.Write(buf)
	return err
}
