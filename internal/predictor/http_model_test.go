package predictor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/vm-autoscaler/internal/predictor"
	"github.com/OldStager01/vm-autoscaler/pkg/models"
)

var testFeatures = models.FeatureVector{3, 100, 1, 50, 5, 1}

func TestHTTPModel_Predict(t *testing.T) {
	var gotBody map[string][]float64
	var gotContentType, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"CPU_utilization": 0.85, "Memory_usage": 0.46, "Disk_IO_MBps": 3.2, "Network_bw_MBps": 14.55}`))
	}))
	defer server.Close()

	model := predictor.NewHTTPModel(predictor.HTTPModelConfig{Endpoint: server.URL, Timeout: time.Second})
	p, err := model.Predict(context.Background(), testFeatures)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, []float64(testFeatures), gotBody["features"])
	assert.InDelta(t, 0.85, p.CPU, 1e-9)
	assert.InDelta(t, 0.46, p.RAM, 1e-9)
	assert.InDelta(t, 0.1455, p.BW, 1e-9)
	assert.Equal(t, models.SourceModel, p.Source)
}

func TestHTTPModel_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantErr   error
		retryable bool
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr:   predictor.ErrPredictionFailed,
			retryable: true,
		},
		{
			name: "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
			},
			wantErr: predictor.ErrPredictionFailed,
		},
		{
			name: "created is not ok",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"CPU_utilization": 0.5, "Memory_usage": 0.5, "Network_bw_MBps": 5}`))
			},
			wantErr: predictor.ErrPredictionFailed,
		},
		{
			name: "missing key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"CPU_utilization": 0.5}`))
			},
			wantErr: predictor.ErrMalformedResponse,
		},
		{
			name: "slow server",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			wantErr:   predictor.ErrTimeout,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			model := predictor.NewHTTPModel(predictor.HTTPModelConfig{Endpoint: server.URL, Timeout: 100 * time.Millisecond})
			p, err := model.Predict(context.Background(), testFeatures)

			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.retryable, predictor.Retryable(err))
		})
	}
}

func TestHTTPModel_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	model := predictor.NewHTTPModel(predictor.HTTPModelConfig{Endpoint: endpoint, Timeout: time.Second})
	_, err := model.Predict(context.Background(), testFeatures)

	assert.ErrorIs(t, err, predictor.ErrPredictionFailed)
}

func TestStatusError_Temporary(t *testing.T) {
	assert.True(t, (&predictor.StatusError{Code: 503}).Temporary())
	assert.True(t, (&predictor.StatusError{Code: 429}).Temporary())
	assert.False(t, (&predictor.StatusError{Code: 404}).Temporary())
}
