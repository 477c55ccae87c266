package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(text string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}}, "finishReason": "STOP"},
		},
	})
	return string(payload)
}

func newParserAgainst(t *testing.T, handler http.HandlerFunc) *LLMPreferenceParser {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	parser := NewLLMPreferenceParser("test-key", server.URL+"/v1beta", "gemini-test", shared.NewHTTPClientFactory(5*time.Second))
	require.NotNil(t, parser)
	return parser
}

func TestLLMPreferenceParserDecodesPreference(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	parser := newParserAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		io.WriteString(w, geminiReply("```json\n{\"genres\":[\"musical\"],\"excludeShows\":[\"Cats\"],\"availability\":{\"daysOfWeek\":[\"Friday\"],\"excludeDates\":[\"2025-03-07\"]}}\n```"))
	})

	pref, err := parser.Parse(context.Background(), "musicals on fridays, never Cats")
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "musicals on fridays, never Cats", gotBody.Contents[0].Parts[0].Text)

	assert.Equal(t, []string{"musical"}, pref.Genres)
	assert.Equal(t, []string{"Cats"}, pref.ExcludeShows)
	require.NotNil(t, pref.Availability)
	assert.Equal(t, []string{"Friday"}, pref.Availability.DaysOfWeek)
	require.Len(t, pref.Availability.ExcludeDates, 1)
	assert.Equal(t, "2025-03-07", pref.Availability.ExcludeDates[0].String())
}

func TestLLMPreferenceParserStatusHandling(t *testing.T) {
	cases := []struct {
		status      int
		code        string
		unavailable bool
	}{
		{http.StatusTooManyRequests, "PREFERENCE_SERVICE_UNAVAILABLE", true},
		{http.StatusServiceUnavailable, "PREFERENCE_SERVICE_UNAVAILABLE", true},
		{http.StatusBadRequest, "PREFERENCE_REQUEST_REJECTED", false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			calls := 0
			parser := newParserAgainst(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				http.Error(w, "nope", tc.status)
			})

			_, err := parser.Parse(context.Background(), "anything")
			require.Error(t, err)
			var serviceErr *shared.ServiceError
			require.True(t, errors.As(err, &serviceErr))
			assert.Equal(t, tc.code, serviceErr.Code)
			assert.Equal(t, tc.unavailable, errors.Is(err, shared.ErrPreferenceServiceUnavailable))
			assert.Equal(t, 1, calls, "no retry")
		})
	}
}

func TestLLMPreferenceParserEmptyAndMalformedReplies(t *testing.T) {
	empty := newParserAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[]}`)
	})
	_, err := empty.Parse(context.Background(), "anything")
	var serviceErr *shared.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "PREFERENCE_EMPTY_RESPONSE", serviceErr.Code)

	malformed := newParserAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, geminiReply("I think you like musicals"))
	})
	_, err = malformed.Parse(context.Background(), "anything")
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "PREFERENCE_DECODE_FAILED", serviceErr.Code)
}

func TestLLMPreferenceParserUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	parser := NewLLMPreferenceParser("k", server.URL, "m", shared.NewHTTPClientFactory(time.Second))

	_, err := parser.Parse(context.Background(), "anything")
	assert.True(t, errors.Is(err, shared.ErrPreferenceServiceUnavailable))
}

func TestNewLLMPreferenceParserRequiresKey(t *testing.T) {
	assert.Nil(t, NewLLMPreferenceParser("  ", "https://example.test", "m", shared.NewHTTPClientFactory(time.Second)))
}
