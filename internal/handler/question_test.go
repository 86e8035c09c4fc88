package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"mathquiz-forge/internal/domain"
	"mathquiz-forge/internal/dto"
	"mathquiz-forge/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockQuestionService struct {
	mock.Mock
}

func (m *MockQuestionService) GetRecentQuestions(ctx context.Context, limit int) (*dto.QuestionListResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.QuestionListResponse), args.Error(1)
}

func (m *MockQuestionService) GetRunQuestions(ctx context.Context, runID string) (*dto.RunQuestionsResponse, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RunQuestionsResponse), args.Error(1)
}

const testRunID = "01HZYXQ9W3K7M2N4P6R8S0T1V2"

func setupApp(svc *MockQuestionService, checks map[string]HealthCheck) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(zap.NewNop())})
	NewQuestionHandler(svc, checks, zap.NewNop()).RegisterRoutes(app)
	return app
}

func doGet(t *testing.T, app *fiber.App, target string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestGetRecentQuestions(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantLimit  int
		wantStatus int
	}{
		{"default limit", "/api/questions", 20, http.StatusOK},
		{"explicit limit", "/api/questions?limit=3", 3, http.StatusOK},
		{"limit too large", "/api/questions?limit=500", 0, http.StatusBadRequest},
		{"limit not a number", "/api/questions?limit=abc", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockQuestionService)
			if tt.wantLimit > 0 {
				svc.On("GetRecentQuestions", mock.Anything, tt.wantLimit).
					Return(&dto.QuestionListResponse{Questions: []dto.QuestionResponse{{ID: "q1"}}, Count: 1}, nil)
			}

			status, body := doGet(t, setupApp(svc, nil), tt.target)
			assert.Equal(t, tt.wantStatus, status)

			if tt.wantStatus == http.StatusOK {
				var got dto.QuestionListResponse
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, 1, got.Count)
			} else {
				var got middleware.ValidationErrorResponse
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, string(domain.ErrValidation), got.Code)
				require.Len(t, got.Errors, 1)
				assert.Equal(t, "limit", got.Errors[0].Field)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestGetRunQuestions(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockQuestionService)
		svc.On("GetRunQuestions", mock.Anything, testRunID).Return(&dto.RunQuestionsResponse{
			Run:       dto.RunResponse{ID: testRunID, QuestionCount: 2},
			Questions: []dto.QuestionResponse{{ID: "q1"}, {ID: "q2"}},
		}, nil)

		status, body := doGet(t, setupApp(svc, nil), "/api/runs/"+testRunID+"/questions")
		assert.Equal(t, http.StatusOK, status)

		var got dto.RunQuestionsResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, testRunID, got.Run.ID)
		assert.Len(t, got.Questions, 2)
	})

	t.Run("invalid run id", func(t *testing.T) {
		svc := new(MockQuestionService)
		status, _ := doGet(t, setupApp(svc, nil), "/api/runs/not-a-ulid/questions")
		assert.Equal(t, http.StatusBadRequest, status)
		svc.AssertNotCalled(t, "GetRunQuestions", mock.Anything, mock.Anything)
	})

	t.Run("unknown run", func(t *testing.T) {
		svc := new(MockQuestionService)
		svc.On("GetRunQuestions", mock.Anything, testRunID).Return(nil, domain.NewNotFoundError("run not found"))

		status, body := doGet(t, setupApp(svc, nil), "/api/runs/"+testRunID+"/questions")
		assert.Equal(t, http.StatusNotFound, status)

		var got middleware.ErrorResponse
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, string(domain.ErrNotFound), got.Code)
		assert.Equal(t, "run not found", got.Message)
	})

	t.Run("database failure hides the cause", func(t *testing.T) {
		svc := new(MockQuestionService)
		svc.On("GetRunQuestions", mock.Anything, testRunID).Return(nil, errors.New("ORA-12541: no listener"))

		status, body := doGet(t, setupApp(svc, nil), "/api/runs/"+testRunID+"/questions")
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.NotContains(t, string(body), "ORA-12541")
	})
}

func TestHealth(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	status, body := doGet(t, setupApp(new(MockQuestionService), map[string]HealthCheck{"redis": healthy, "database": healthy}), "/healthz")
	assert.Equal(t, http.StatusOK, status)
	var got dto.HealthResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, map[string]string{"redis": "up", "database": "up"}, got.Services)

	status, body = doGet(t, setupApp(new(MockQuestionService), map[string]HealthCheck{"redis": broken, "database": healthy}), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "down", got.Services["redis"])
}
