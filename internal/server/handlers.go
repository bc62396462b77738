package server

import (
	"context"
	"net/http"

	"xpertly/internal/async"
	xerrors "xpertly/internal/errors"
	"xpertly/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type triggerRequest struct {
	Tags   []string            `json:"tags"`
	Worker worker.WorkerConfig `json:"worker"`
	ExeID  *uuid.UUID          `json:"exeId"`
}

type resumeRequest struct {
	Token        string         `json:"token"`
	CustomOutput map[string]any `json:"customOutput"`
}

type cancelRequest struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

func (s *Server) handleTrigger(c *gin.Context) {
	bearer := c.GetString(bearerTokenKey)

	tenantID, err := uuid.Parse(c.Param("tenantId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	w, err := worker.FromConfig(&req.Worker)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username, err := usernameFromToken(bearer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "could not identify caller: " + err.Error()})
		return
	}

	user, err := s.users.Resolve(c.Request.Context(), bearer, tenantID, username)
	if err != nil {
		s.logger.Error("user lookup for %s failed: %v", username, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "user lookup failed"})
		return
	}

	exeID := uuid.New()
	if req.ExeID != nil {
		exeID = *req.ExeID
	}

	authToken := c.GetHeader("Authorization")
	tags := req.Tags
	deps := s.deps
	logger := s.logger
	async.Go(s.logger, "worker execution "+exeID.String(), func() {
		if err := worker.Execute(context.Background(), tags, w, user, authToken, exeID, deps); err != nil {
			logger.Error("execution %s failed to start: %v", exeID, err)
		}
	})

	c.JSON(http.StatusOK, gin.H{"executionId": exeID})
}

func (s *Server) handleResume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	inv, ok := s.loadSuspended(c, req.Token)
	if !ok {
		return
	}

	customOutput := req.CustomOutput
	async.Go(s.logger, "resume "+inv.RunID.String(), func() {
		inv.Resume(context.Background(), customOutput)
	})

	c.JSON(http.StatusOK, gin.H{"message": "successfully resumed worker"})
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	inv, ok := s.loadSuspended(c, req.Token)
	if !ok {
		return
	}

	message := req.Message
	async.Go(s.logger, "cancel "+inv.RunID.String(), func() {
		inv.Cancel(context.Background(), message)
	})

	c.JSON(http.StatusOK, gin.H{"message": "successfully cancelled worker"})
}

// loadSuspended turns a wait token back into a live invocation. It writes the
// error response itself when anything fails.
func (s *Server) loadSuspended(c *gin.Context, waitToken string) (*worker.Invocation, bool) {
	claims, err := s.deps.Signer.Verify(waitToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}

	payload, err := s.deps.Persist.FetchSuspended(c.Request.Context(), claims.Auth, claims.ID)
	if err != nil {
		s.logger.Error("suspended payload lookup for run %s failed: %v", claims.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "suspended run lookup failed"})
		return nil, false
	}

	inv, err := worker.FromSuspended(payload, s.deps)
	if err != nil {
		s.logger.Error("rebuild of run %s failed: %v", claims.ID, err)
		status := http.StatusInternalServerError
		if xerrors.IsAuth(err) {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": "could not restore suspended run"})
		return nil, false
	}
	return inv, true
}

// usernameFromToken pulls the platform username out of the caller's bearer
// token. The token is verified upstream by the API gateway; here it only
// identifies which user document to fetch.
func usernameFromToken(bearer string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, claims); err != nil {
		return "", err
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", xerrors.NewAuthError("token carries no username claim")
	}
	return username, nil
}
