package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRouter creates the app router in test mode inside a temporary working directory
func setupTestRouter(t *testing.T) (*App, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// Isolate to a temp working directory
	tmp := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	useTempConfigDir(t)
	resetJobs(t, 10)

	origWebsites := websitesFile
	websitesFile = "websites.txt"
	t.Cleanup(func() { websitesFile = origWebsites })

	app := newTestApp(t)
	return app, app.newRouter()
}

func performRequest(router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		jsonPayload, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonPayload)
	} else {
		body = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestStatusHandler(t *testing.T) {
	_, router := setupTestRouter(t)

	w := performRequest(router, "GET", "/api/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Ready    bool   `json:"ready"`
		TestMode bool   `json:"test_mode"`
		Provider string `json:"provider"`
		MaxPages struct {
			Min     int `json:"min"`
			Max     int `json:"max"`
			Default int `json:"default"`
		} `json:"max_pages"`
	}
	decodeBody(t, w, &status)
	assert.True(t, status.Ready)
	assert.True(t, status.TestMode)
	assert.Equal(t, "googleai", status.Provider)
	assert.Equal(t, 5, status.MaxPages.Min)
	assert.Equal(t, 50, status.MaxPages.Max)
	assert.Equal(t, 20, status.MaxPages.Default)
}

func TestStatusHandlerNotReady(t *testing.T) {
	app, router := setupTestRouter(t)
	app.TestMode = false

	w := performRequest(router, "GET", "/api/status", nil)
	var status map[string]interface{}
	decodeBody(t, w, &status)
	assert.Equal(t, false, status["ready"])
}

func TestAnalyzeAndJobHandlers(t *testing.T) {
	_, router := setupTestRouter(t)

	t.Run("invalid url", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/analyze", gin.H{"url": "https://"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing url", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/analyze", gin.H{"max_pages": 10})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := performRequest(router, "POST", "/api/analyze", gin.H{"url": "sparkle.test", "max_pages": 3})
	require.Equal(t, http.StatusAccepted, w.Code)
	var submitted struct {
		JobID    string `json:"job_id"`
		URL      string `json:"url"`
		MaxPages int    `json:"max_pages"`
	}
	decodeBody(t, w, &submitted)
	assert.NotEmpty(t, submitted.JobID)
	assert.Equal(t, "https://sparkle.test/", submitted.URL)
	assert.Equal(t, 5, submitted.MaxPages, "page budget is clamped")

	w = performRequest(router, "GET", "/api/jobs/"+submitted.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job Job
	decodeBody(t, w, &job)
	assert.Equal(t, JobPending, job.Status)

	w = performRequest(router, "GET", "/api/jobs", nil)
	var jobs []Job
	decodeBody(t, w, &jobs)
	assert.Len(t, jobs, 1)

	w = performRequest(router, "POST", "/api/jobs/"+submitted.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = performRequest(router, "POST", "/api/jobs/"+submitted.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = performRequest(router, "GET", "/api/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = performRequest(router, "POST", "/api/jobs/unknown/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisHandlers(t *testing.T) {
	app, router := setupTestRouter(t)

	resultJSON, err := sampleLeadScore().MarshalIndent()
	require.NoError(t, err)
	record := &LeadAnalysis{
		URL:            "https://sparkle.test/",
		TotalScore:     85,
		Priority:       PriorityHigh,
		PagesCrawled:   2,
		TestMode:       true,
		ResultJSON:     string(resultJSON),
		WebsiteContext: "[PAGE: https://sparkle.test/]\nHome\n\n[PAGE: https://sparkle.test/shop]\nRings $40\n\n",
	}
	require.NoError(t, InsertLeadAnalysis(app.Database, record))
	base := fmt.Sprintf("/api/analyses/%d", record.ID)

	w := performRequest(router, "GET", "/api/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]interface{}
	decodeBody(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "https://sparkle.test/", list[0]["url"])
	assert.NotContains(t, list[0], "website_context")

	w = performRequest(router, "GET", base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Analysis LeadAnalysis `json:"analysis"`
		Result   LeadScore    `json:"result"`
		Pages    []struct {
			URL  string `json:"url"`
			Text string `json:"text"`
		} `json:"pages"`
	}
	decodeBody(t, w, &detail)
	assert.Equal(t, Score(85), detail.Result.TotalScore)
	require.Len(t, detail.Pages, 2)
	assert.Equal(t, "https://sparkle.test/shop", detail.Pages[1].URL)
	assert.Equal(t, "Rings $40", detail.Pages[1].Text)

	w = performRequest(router, "GET", base+"/download/json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="lead_analysis_https_sparkle.test_.json"`, w.Header().Get("Content-Disposition"))
	assert.JSONEq(t, string(resultJSON), w.Body.String())

	w = performRequest(router, "GET", base+"/download/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="website_context_https_sparkle.test_.txt"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, record.WebsiteContext, w.Body.String())

	w = performRequest(router, "GET", "/api/analyses/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performRequest(router, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = performRequest(router, "GET", base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = performRequest(router, "DELETE", base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebsitesAndBatchHandlers(t *testing.T) {
	app, router := setupTestRouter(t)

	w := performRequest(router, "GET", "/api/websites", nil)
	require.Equal(t, http.StatusOK, w.Code, "a missing list is empty")

	w = performRequest(router, "POST", "/api/batch", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no urls and no list")

	require.NoError(t, os.WriteFile("websites.txt", []byte("# leads\nold.test\nnew.test\nnew.test\n"), 0644))
	require.NoError(t, InsertLeadAnalysis(app.Database, &LeadAnalysis{URL: "https://old.test/", Priority: PriorityLow, ResultJSON: "{}"}))

	w = performRequest(router, "GET", "/api/websites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var websites struct {
		Count    int `json:"count"`
		Websites []struct {
			URL      string `json:"url"`
			Analyzed bool   `json:"analyzed"`
		} `json:"websites"`
	}
	decodeBody(t, w, &websites)
	require.Equal(t, 2, websites.Count)
	assert.True(t, websites.Websites[0].Analyzed)
	assert.False(t, websites.Websites[1].Analyzed)

	w = performRequest(router, "POST", "/api/batch", gin.H{"skip_analyzed": true})
	require.Equal(t, http.StatusAccepted, w.Code)
	var batch struct {
		JobIDs  []string `json:"job_ids"`
		Queued  int      `json:"queued"`
		Skipped int      `json:"skipped"`
	}
	decodeBody(t, w, &batch)
	assert.Equal(t, 1, batch.Queued)
	assert.Equal(t, 1, batch.Skipped)

	w = performRequest(router, "POST", "/api/batch", gin.H{"urls": []string{"a.test", "b.test"}})
	require.Equal(t, http.StatusAccepted, w.Code)
	decodeBody(t, w, &batch)
	assert.Equal(t, 2, batch.Queued)
	assert.Len(t, jobStore.GetAllJobs(), 3)
}

func TestGetPromptsHandler(t *testing.T) {
	_, router := setupTestRouter(t)

	w := performRequest(router, "GET", "/api/prompts", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	decodeBody(t, w, &response)
	assert.Equal(t, defaultLeadScoreTemplate, response[leadScorePromptFile], "default is shown before anything is saved")

	// Create a dummy prompt file
	promptContent := "Hello {{.Name}}"
	require.NoError(t, os.MkdirAll("prompts", os.ModePerm))
	require.NoError(t, os.WriteFile(filepath.Join("prompts", "test_prompt.tmpl"), []byte(promptContent), 0644))

	w = performRequest(router, "GET", "/api/prompts", nil)
	decodeBody(t, w, &response)
	assert.Equal(t, promptContent, response["test_prompt.tmpl"])
}

func TestUpdatePromptsHandler(t *testing.T) {
	_, router := setupTestRouter(t)

	t.Run("Successful update", func(t *testing.T) {
		newContent := "Rate this shop: {{.Content | trim}}"
		w := performRequest(router, "POST", "/api/prompts", gin.H{
			"filename": leadScorePromptFile,
			"content":  newContent,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		fileContent, err := os.ReadFile(filepath.Join("prompts", leadScorePromptFile))
		assert.NoError(t, err)
		assert.Equal(t, newContent, string(fileContent))

		prompt, err := buildLeadScorePrompt("  rings  ")
		require.NoError(t, err)
		assert.Equal(t, "Rate this shop: rings", prompt)
	})

	t.Run("Invalid template content", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/prompts", gin.H{
			"filename": leadScorePromptFile,
			"content":  "Invalid {{.Value",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("New file", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/prompts", gin.H{
			"filename": "follow_up_prompt.tmpl",
			"content":  "Some content",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	for _, name := range []string{"../evil.tmpl", "sub/evil.tmpl", ".hidden.tmpl", "notes.txt"} {
		t.Run("Rejected filename "+name, func(t *testing.T) {
			w := performRequest(router, "POST", "/api/prompts", gin.H{
				"filename": name,
				"content":  "irrelevant",
			})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSettingsHandlers(t *testing.T) {
	_, router := setupTestRouter(t)

	w := performRequest(router, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var s Settings
	decodeBody(t, w, &s)
	assert.Equal(t, 20, s.DefaultMaxPages)

	w = performRequest(router, "POST", "/api/settings", gin.H{"default_max_pages": 12})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, currentSettings().DefaultMaxPages)
	assert.FileExists(t, filepath.Join(configDir, settingsFile))

	w = performRequest(router, "POST", "/api/settings", gin.H{"default_max_pages": 51})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 12, currentSettings().DefaultMaxPages)
}

func TestEmbeddedUI(t *testing.T) {
	_, router := setupTestRouter(t)

	w := performRequest(router, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Lead Qualifier")

	w = performRequest(router, "GET", "/assets/app.js", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(router, "GET", "/assets/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performRequest(router, "GET", "/history", nil)
	assert.Equal(t, http.StatusOK, w.Code, "unknown pages fall back to the UI")

	w = performRequest(router, "GET", "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
