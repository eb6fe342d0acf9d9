package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"speech-affect/pkg/models"
	"speech-affect/pkg/scorer"
)

type stubClassifier struct {
	resp  *models.EmotionResponse
	err   error
	calls atomic.Int32
	got   atomic.Value
}

func (s *stubClassifier) Model() string { return "stub-model" }

func (s *stubClassifier) Submit(_ context.Context, data []byte) (*models.EmotionResponse, error) {
	s.calls.Add(1)
	s.got.Store(data)
	return s.resp, s.err
}

type stubTranscriber struct {
	text     string
	err      error
	filename string
}

func (s *stubTranscriber) Transcribe(_ context.Context, filename string, _ []byte) (string, error) {
	s.filename = filename
	return s.text, s.err
}

type stubHealth struct {
	resp *scorer.HealthResponse
	err  error
}

func (s *stubHealth) Health(context.Context) (*scorer.HealthResponse, error) {
	return s.resp, s.err
}

func positiveResponse() *models.EmotionResponse {
	return models.NewEmotionResponse(models.EmotionDecision{
		Label: models.Positive,
		Results: []models.ClassificationResult{
			{Raw: "hap", Score: 0.8, Mapped: models.Positive},
			{Raw: "neu", Score: 0.2, Mapped: models.Neutral},
		},
	}, "stub-model")
}

func multipartRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "value"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
