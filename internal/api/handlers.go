package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solana-mm-agent/internal/agent"
	"solana-mm-agent/internal/domain"
)

func (s *Server) handleHealth(c *gin.Context) {
	st := s.agent.State()
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"agent":   s.agent.Name(),
		"phase":   st.Phase,
		"uptime":  time.Since(s.started).Seconds(),
		"time":    time.Now().UTC(),
		"address": s.agent.Address(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.agent.State())
}

func (s *Server) handleStart(c *gin.Context) {
	err := s.agent.Start(c.Request.Context())
	switch {
	case errors.Is(err, agent.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"phase": domain.PhaseRunning, "state": s.agent.State()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.agent.Stop()
	c.JSON(http.StatusOK, gin.H{"phase": domain.PhaseStopped, "state": s.agent.State()})
}
