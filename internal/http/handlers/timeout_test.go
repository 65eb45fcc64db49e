package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/fieldserve/backend/internal/db"
	"github.com/fieldserve/backend/internal/models"
	"github.com/fieldserve/backend/internal/scoring"
	"github.com/fieldserve/backend/internal/service"
)

// deadlineStore records whether lookups ran under a deadline.
type deadlineStore struct {
	*db.Memory
	sawDeadline bool
}

func (s *deadlineStore) GetJob(ctx context.Context, jobID, kind string) (models.ServiceJob, error) {
	_, s.sawDeadline = ctx.Deadline()
	return s.Memory.GetJob(ctx, jobID, kind)
}

func TestScoreJobAppliesRequestTimeout(t *testing.T) {
	store := &deadlineStore{Memory: db.NewMemory()}
	h := &Handler{
		Store: store,
		Orchestrator: &service.Orchestrator{
			Store:  store,
			Engine: scoring.MustEngine(scoring.DefaultWeights()),
			Logger: zerolog.Nop(),
		},
		Validator:      validator.New(),
		Logger:         zerolog.Nop(),
		RequestTimeout: 5 * time.Second,
	}

	r := gin.New()
	r.POST("/api/jobs/:kind/:id/score", h.ScoreJob)

	req, _ := http.NewRequest(http.MethodPost, "/api/jobs/inspection/missing/score", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !store.sawDeadline {
		t.Fatalf("expected score lookup to run under the request timeout")
	}
}
