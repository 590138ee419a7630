package diagnostic

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/turtle-catcher/domain/catcher"
)

// CatcherMetrics represents catcher diagnostics information
type CatcherMetrics struct {
	Timestamp         time.Time               `json:"timestamp"`
	Pose              catcher.Pose            `json:"pose"`
	Goal              catcher.Goal            `json:"goal"`
	State             catcher.State           `json:"state"`
	Distance          float64                 `json:"distance"`
	LastCommand       catcher.VelocityCommand `json:"last_command"`
	GoalsCaught       int64                   `json:"goals_caught"`
	CommandsPublished int64                   `json:"commands_published"`
	PublishErrors     int64                   `json:"publish_errors"`
	Evaluations       int64                   `json:"evaluations"`
}

// DiagnosticService aggregates controller evaluations into CatcherMetrics
type DiagnosticService struct {
	mu      sync.RWMutex
	metrics CatcherMetrics
}

// NewDiagnosticService creates a new diagnostic service instance
func NewDiagnosticService() *DiagnosticService {
	return &DiagnosticService{
		metrics: CatcherMetrics{
			Timestamp: time.Now(),
			State:     catcher.StateSeeking,
		},
	}
}

// ObserveEvaluation folds one controller evaluation into the metrics
func (s *DiagnosticService) ObserveEvaluation(ev catcher.Evaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.Timestamp = ev.At
	s.metrics.Pose = ev.Pose
	s.metrics.Goal = ev.Goal
	s.metrics.State = ev.State
	s.metrics.Distance = ev.Distance
	s.metrics.LastCommand = ev.Command
	s.metrics.Evaluations++

	if ev.PublishErr != nil {
		s.metrics.PublishErrors++
	} else {
		s.metrics.CommandsPublished++
	}
	if ev.Caught {
		s.metrics.GoalsCaught++
	}
}

// GetMetrics returns the current catcher metrics
func (s *DiagnosticService) GetMetrics() CatcherMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.metrics
}

// GetMetricsHandler handles API requests for catcher metrics
func (s *DiagnosticService) GetMetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"metrics": s.GetMetrics(),
	})
}
