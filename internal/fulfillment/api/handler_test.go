package api_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/fulfillment/api"
	"ms-fulfillment/internal/gateway"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders/db"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWorkflow struct {
	mock.Mock
}

func (m *MockWorkflow) StartCapture(ctx context.Context, orderID, intentID string) error {
	return m.Called(ctx, orderID, intentID).Error(0)
}

func (m *MockWorkflow) Cancel(ctx context.Context, orderID, readerID string) error {
	return m.Called(ctx, orderID, readerID).Error(0)
}

func (m *MockWorkflow) Dispatch(ctx context.Context, orderID string) ([]byte, error) {
	args := m.Called(ctx, orderID)
	if label, ok := args.Get(0).([]byte); ok {
		return label, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockWorkflow) ListOutstanding(ctx context.Context, storeID string) ([]models.Order, error) {
	args := m.Called(ctx, storeID)
	if orders, ok := args.Get(0).([]models.Order); ok {
		return orders, args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestRouter(workflow *MockWorkflow) *chi.Mux {
	h := &api.Handler{Workflow: workflow}

	r := chi.NewRouter()
	r.Post("/api/v1/orders/{orderId}/capture", h.StartCapture)
	r.Post("/api/v1/orders/{orderId}/cancel", h.Cancel)
	r.Post("/api/v1/orders/{orderId}/dispatch", h.Dispatch)
	r.Get("/api/v1/stores/{storeId}/orders/outstanding", h.ListOutstanding)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartCaptureSuccess(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("StartCapture", mock.Anything, "order-1", "pi_1").Return(nil)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/capture", `{"payment_intent_id":"pi_1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.StatusCaptured)
	workflow.AssertExpectations(t)
}

func TestStartCaptureRejectsMissingIntent(t *testing.T) {
	workflow := new(MockWorkflow)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/capture", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	workflow.AssertNotCalled(t, "StartCapture", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorkflowErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown order", db.ErrNotFound, http.StatusNotFound},
		{"wrong state", db.ErrInvalidState, http.StatusConflict},
		{"contended lock", gateway.ErrReaderBusy, http.StatusConflict},
		{"dead intent", gateway.ErrNotCapturable, http.StatusUnprocessableEntity},
		{"processor down", gateway.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			workflow := new(MockWorkflow)
			workflow.On("StartCapture", mock.Anything, "order-1", "pi_1").Return(tc.err)

			rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
				"/api/v1/orders/order-1/capture", `{"payment_intent_id":"pi_1"}`)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}

func TestCancelSuccess(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("Cancel", mock.Anything, "order-1", "tmr_1").Return(nil)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/cancel", `{"reader_id":"tmr_1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), models.StatusCanceled)
}

func TestCancelRejectsMissingReader(t *testing.T) {
	workflow := new(MockWorkflow)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/cancel", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	workflow.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchReturnsEncodedLabel(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("Dispatch", mock.Anything, "order-1").Return([]byte("png-bytes"), nil)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/dispatch", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.DispatchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusDispatched, resp.Data.Status)

	raw, err := base64.StdEncoding.DecodeString(resp.Data.Label)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), raw)
}

func TestDispatchWithoutLabelOmitsIt(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("Dispatch", mock.Anything, "order-1").Return(nil, nil)

	rec := doRequest(t, newTestRouter(workflow), http.MethodPost,
		"/api/v1/orders/order-1/dispatch", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data models.DispatchResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Label)
}

func TestListOutstandingScopedToStore(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("ListOutstanding", mock.Anything, "store-1").Return([]models.Order{
		{OrderID: "order-1", StoreID: "store-1", Paid: true},
	}, nil)

	router := newTestRouter(workflow)

	// A token scoped to the same store passes.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stores/store-1/orders/outstanding", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), "user-1", "store-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order-1")

	// A token scoped to a different store is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/stores/store-1/orders/outstanding", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), "user-2", "store-2"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListOutstandingUnscopedToken(t *testing.T) {
	workflow := new(MockWorkflow)
	workflow.On("ListOutstanding", mock.Anything, "store-1").Return([]models.Order{}, nil)

	// No store claim means an owner token; any store is visible.
	rec := doRequest(t, newTestRouter(workflow), http.MethodGet,
		"/api/v1/stores/store-1/orders/outstanding", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}
