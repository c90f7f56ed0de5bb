package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/domain"
	"github.com/ddx-reasoning-core/internal/feedback"
	"github.com/ddx-reasoning-core/internal/middleware"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	}

	if s.deps.Knowledge != nil {
		if snapshot, err := s.deps.Knowledge.Current(); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["knowledge"] = err.Error()
		} else {
			body["knowledge_version"] = snapshot.Version()
		}
	}
	if s.deps.Admission != nil {
		body["admission"] = s.deps.Admission.Stats()
	}
	c.JSON(status, body)
}

func (s *Server) handleDiagnose(c *gin.Context) {
	var doc domain.CaseDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, err := doc.ToNormalizedCase()
	if err != nil {
		s.writeError(c, domain.NewDiagnosticError(domain.ErrInvalidInput, err.Error(), "The case is incomplete or malformed.", err))
		return
	}

	if s.deps.Admission != nil {
		if wait := s.deps.Admission.EstimatedWait(); wait > 0 {
			c.Header("X-Estimated-Wait", strconv.Itoa(seconds(wait)))
		}
	}

	dd, err := s.deps.Engine.Diagnose(c.Request.Context(), profile)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.deps.Differentials != nil {
		if err := s.deps.Differentials.Save(c.Request.Context(), dd); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"case_id":         dd.CaseID,
				"differential_id": dd.ID,
			}).Error("Failed to persist differential")
		}
	}
	c.JSON(http.StatusOK, dd)
}

func (s *Server) handleGetDifferential(c *gin.Context) {
	dd, err := s.deps.Differentials.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dd)
}

func (s *Server) handleListDifferentials(c *gin.Context) {
	list, err := s.deps.Differentials.ListByCase(c.Request.Context(), c.Param("case_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": c.Param("case_id"), "differentials": list})
}

// handleRecordFeedback stores a clinician outcome. When differential_id is given, rank,
// predicted confidence and versions are taken from the stored differential.
func (s *Server) handleRecordFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "feedback storage is not configured"})
		return
	}

	var fb feedback.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if fb.DifferentialID != "" && s.deps.Differentials != nil {
		dd, err := s.deps.Differentials.GetByID(c.Request.Context(), fb.DifferentialID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if err := fb.FillFrom(dd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := fb.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Feedback.Save(c.Request.Context(), &fb); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleCalibration(c *gin.Context) {
	if s.deps.Feedback == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "feedback storage is not configured"})
		return
	}

	opts := feedback.DefaultAuditOptions()
	opts.ModelVersion = c.Query("model_version")
	if v := c.Query("bins"); v != "" {
		bins, err := strconv.Atoi(v)
		if err != nil || bins < 1 || bins > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bins must be an integer between 1 and 100"})
			return
		}
		opts.Bins = bins
	}

	audit, err := feedback.Evaluate(c.Request.Context(), s.deps.Feedback, opts)
	if errors.Is(err, feedback.ErrNoSamples) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, audit)
}

func (s *Server) handleKnowledge(c *gin.Context) {
	summary, err := s.deps.Knowledge.Describe(s.configManager.GetDiagnosisConfig().RareThreshold)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// topDiseaseCounter is implemented by repositories that can aggregate stored differentials.
type topDiseaseCounter interface {
	CountByTopDisease(ctx context.Context) (map[string]int, error)
}

func (s *Server) handleTopDiseaseStats(c *gin.Context) {
	counter, ok := s.deps.Differentials.(topDiseaseCounter)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "differential statistics are not available for this store"})
		return
	}
	counts, err := counter.CountByTopDisease(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"top_diseases": counts})
}

// writeError maps failures onto HTTP statuses. Refusals carry their code and the clinical
// explanation; defects and infrastructure failures do not leak detail.
func (s *Server) writeError(c *gin.Context, err error) {
	correlationID := c.GetString(middleware.CorrelationIDKey)

	if de, ok := domain.AsDiagnosticError(err); ok {
		status := statusFor(de)
		if de.Code == domain.ErrOverload && de.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(seconds(de.RetryAfter)))
		}
		if status >= http.StatusInternalServerError {
			s.logger.WithError(err).WithField("correlation_id", correlationID).Error("Diagnosis request failed")
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":        de.Code,
				"message":     de.Message,
				"explanation": de.Explanation,
				"retryable":   de.Retryable,
			},
			"correlation_id": correlationID,
		})
		return
	}

	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "correlation_id": correlationID})
		return
	}

	s.logger.WithError(err).WithField("correlation_id", correlationID).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "correlation_id": correlationID})
}

func statusFor(de *domain.DiagnosticError) int {
	if de.IsRefusal() {
		return http.StatusUnprocessableEntity
	}
	switch de.Code {
	case domain.ErrOverload, domain.ErrKnowledgeUnavailable:
		return http.StatusServiceUnavailable
	case domain.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
