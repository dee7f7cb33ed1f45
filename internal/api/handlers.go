package api

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scribeflow/resilience/internal/alerting"
	"github.com/scribeflow/resilience/internal/database"
	"github.com/scribeflow/resilience/internal/redisclient"
	"github.com/scribeflow/resilience/pkg/resilience"
	"github.com/scribeflow/resilience/pkg/state"
)

const (
	defaultAlertLimit = 20
	maxAlertLimit     = 100
)

func limitFrom(c *gin.Context, defaultLimit, maxLimit int) int {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}

// handleStatus reports the resilience layer's view of service health
func handleStatus(manager *resilience.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		SuccessResponse(c, manager.GetHealthStatus())
	}
}

// handleSystemMetrics reports process level resource usage
func handleSystemMetrics(manager *resilience.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		SuccessResponse(c, manager.GetSystemMetrics())
	}
}

// handleAlerts lists recent alerts. The redis feed is the durable source
// when available; otherwise the in-memory buffer from the health monitor
// serves the request.
func handleAlerts(manager *resilience.Manager, redis *redisclient.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := limitFrom(c, defaultAlertLimit, maxAlertLimit)

		if redis != nil {
			entries, err := redis.LRange(c.Request.Context(), alerting.AlertFeedKey, 0, int64(limit)-1)
			if err == nil {
				alerts := make([]resilience.Alert, 0, len(entries))
				for _, entry := range entries {
					var alert resilience.Alert
					if err := json.Unmarshal([]byte(entry), &alert); err != nil {
						continue
					}
					alerts = append(alerts, alert)
				}
				SuccessResponse(c, gin.H{"alerts": alerts, "count": len(alerts), "source": "redis"})
				return
			}
		}

		alerts := manager.GetHealthStatus().Alerts
		if len(alerts) > limit {
			alerts = alerts[len(alerts)-limit:]
		}
		SuccessResponse(c, gin.H{"alerts": alerts, "count": len(alerts), "source": "memory"})
	}
}

// handleStateInfo reports session counts and save freshness
func handleStateInfo(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		SuccessResponse(c, store.Info())
	}
}

// handleStateSave forces a synchronous state save
func handleStateSave(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.SaveNow(c.Request.Context()); err != nil {
			ErrorResponseFromError(c, err)
			return
		}
		SuccessResponse(c, gin.H{"saved": true, "state": store.Info()})
	}
}

func handleSessionList(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := store.Sessions()
		SuccessResponse(c, gin.H{"sessions": sessions, "count": len(sessions)})
	}
}

type createSessionRequest struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

func handleSessionCreate(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequestResponse(c, "Invalid request body: "+err.Error())
			return
		}

		if req.ID == "" {
			req.ID = uuid.New().String()
		}

		store.PutSession(req.ID, req.Data)
		session, _ := store.GetSession(req.ID)
		CreatedResponse(c, gin.H{"id": req.ID, "session": session})
	}
}

func handleSessionGet(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		session, ok := store.GetSession(id)
		if !ok {
			NotFoundResponse(c, "Session not found")
			return
		}
		SuccessResponse(c, gin.H{"id": id, "session": session})
	}
}

func handleSessionTouch(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !store.TouchSession(id) {
			NotFoundResponse(c, "Session not found")
			return
		}
		session, _ := store.GetSession(id)
		SuccessResponse(c, gin.H{"id": id, "session": session})
	}
}

func handleSessionDelete(store *state.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !store.RemoveSession(id) {
			NotFoundResponse(c, "Session not found")
			return
		}
		SuccessResponse(c, gin.H{"id": id, "removed": true})
	}
}

// handleSessionArchive moves a session from live state into the database
// archive. The session is removed from live state only after the archive
// write succeeds.
func handleSessionArchive(store *state.Manager, archive *database.SessionArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archive == nil {
			ServiceUnavailableResponse(c, "Session archive is not configured")
			return
		}

		id := c.Param("id")
		session, ok := store.GetSession(id)
		if !ok {
			NotFoundResponse(c, "Session not found")
			return
		}

		if err := archive.Archive(c.Request.Context(), id, session); err != nil {
			ErrorResponseFromError(c, err)
			return
		}

		store.RemoveSession(id)
		SuccessResponse(c, gin.H{"id": id, "archived": true})
	}
}

func handleArchivedSessions(archive *database.SessionArchive) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archive == nil {
			ServiceUnavailableResponse(c, "Session archive is not configured")
			return
		}

		limit := limitFrom(c, 50, 200)
		sessions, err := archive.Recent(c.Request.Context(), limit)
		if err != nil {
			ErrorResponseFromError(c, err)
			return
		}

		count, err := archive.Count(c.Request.Context())
		if err != nil {
			ErrorResponseFromError(c, err)
			return
		}

		SuccessResponse(c, gin.H{"sessions": sessions, "count": len(sessions), "total": count})
	}
}

// handleHealthReset clears accumulated health metrics
func handleHealthReset(manager *resilience.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		manager.ResetHealthMetrics()
		SuccessResponse(c, gin.H{"reset": true, "status": manager.GetHealthStatus()})
	}
}

// handleForceHealthCheck runs a health evaluation immediately
func handleForceHealthCheck(manager *resilience.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		SuccessResponse(c, manager.ForceHealthCheck())
	}
}

type simulateRequest struct {
	Requests    int     `json:"requests"`
	SuccessRate float64 `json:"success_rate"`
}

// handleSimulate injects synthetic request traffic into the health
// monitor. Only wired up in development environments.
func handleSimulate(manager *resilience.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := simulateRequest{Requests: 100, SuccessRate: 0.95}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				BadRequestResponse(c, "Invalid request body: "+err.Error())
				return
			}
		}

		if req.Requests < 1 || req.Requests > 100000 {
			BadRequestResponse(c, "Requests must be between 1 and 100000")
			return
		}
		if req.SuccessRate < 0 || req.SuccessRate > 1 {
			BadRequestResponse(c, "Success rate must be between 0 and 1")
			return
		}

		manager.SimulateActivity(req.Requests, req.SuccessRate)
		SuccessResponse(c, gin.H{
			"requests":     req.Requests,
			"success_rate": req.SuccessRate,
			"status":       manager.GetHealthStatus(),
		})
	}
}
