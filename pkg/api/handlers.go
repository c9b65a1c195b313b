package api

import (
	"net/http"
	"time"

	"generichttp/pkg/models"
	"generichttp/pkg/persistence"

	"github.com/gin-gonic/gin"
)

// send hands a request to the owning service and waits for its reply.
// It gives up when the client goes away.
func send(c *gin.Context, reqCh chan<- models.Request, req models.Request) (models.Response, bool) {
	ctx := c.Request.Context()
	replyCh := make(chan models.Response, 1)
	req.ReplyCh = replyCh

	select {
	case reqCh <- req:
	case <-ctx.Done():
		respondError(c, http.StatusServiceUnavailable, "request cancelled")
		return models.Response{}, false
	}

	select {
	case resp := <-replyCh:
		if resp.Error != nil {
			respondFailure(c, resp.Error)
			return resp, false
		}
		return resp, true
	case <-ctx.Done():
		respondError(c, http.StatusServiceUnavailable, "request cancelled")
		return models.Response{}, false
	}
}

// listDevicesHandler returns every device with its ports.
func listDevicesHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := send(c, reqCh, models.Request{Operation: models.OpList})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}

// getDeviceHandler returns a single device by ID
func getDeviceHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := send(c, reqCh, models.Request{Operation: models.OpGet, DeviceID: c.Param("id")})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}

// pollDeviceHandler runs a read cycle now and returns the refreshed device.
func pollDeviceHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := send(c, reqCh, models.Request{Operation: models.OpPoll, DeviceID: c.Param("id")})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}

func readPortHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, ok := send(c, reqCh, models.Request{
			Operation: models.OpReadPort,
			DeviceID:  c.Param("id"),
			PortID:    c.Param("port"),
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}

// writePortHandler sends a new value to a writable port.
// The body is {"value": <bool|number>}.
func writePortHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		value, present := body["value"]
		if !present {
			respondError(c, http.StatusBadRequest, "value is required")
			return
		}

		resp, ok := send(c, reqCh, models.Request{
			Operation: models.OpWritePort,
			DeviceID:  c.Param("id"),
			PortID:    c.Param("port"),
			Payload:   &models.PortWrite{Value: value},
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}

// HistoryQuery holds the query string of a history request.
type HistoryQuery struct {
	Start time.Time `form:"start" time_format:"2006-01-02T15:04:05Z07:00"`
	End   time.Time `form:"end" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit int       `form:"limit" binding:"omitempty,min=1,max=10000"`
	Ports []string  `form:"port"`
}

// historyHandler returns stored port values of a device, newest first.
func historyHandler(reqCh chan<- models.Request) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q HistoryQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}

		resp, ok := send(c, reqCh, models.Request{
			Operation: models.OpQuery,
			Payload: &persistence.HistoryQueryRequest{
				DeviceID: c.Param("id"),
				PortIDs:  q.Ports,
				Query:    models.SampleQuery{Start: q.Start, End: q.End, Limit: q.Limit},
			},
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, resp.Data)
	}
}
