package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lead-qualifier/crawler"
	"lead-qualifier/internal/constants"
)

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, crawler.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoJSONInResponse), errors.Is(err, ErrInvalidAPIKey), errors.Is(err, ErrQuotaExceeded):
		return http.StatusBadGateway
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusHandler handles the GET /api/status endpoint. "ready" is what the UI shows
// as the app being up and able to score.
func (app *App) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ready":     app.TestMode || app.LLM != nil,
		"test_mode": app.TestMode,
		"provider":  llmProvider,
		"model":     llmModel,
		"max_pages": gin.H{
			"min":     constants.MinMaxPages,
			"max":     constants.MaxMaxPages,
			"default": currentSettings().DefaultMaxPages,
		},
	})
}

// analyzeHandler handles the POST /api/analyze endpoint
func (app *App) analyzeHandler(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request payload: %v", err)})
		return
	}

	job, err := submitJob(req.URL, req.MaxPages)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		log.Errorf("Error submitting analysis of %s: %v", req.URL, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "url": job.URL, "max_pages": job.MaxPages})
}

func (app *App) getJobStatusHandler(c *gin.Context) {
	job, exists := jobStore.getJob(c.Param("job_id"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (app *App) getAllJobsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, jobStore.GetAllJobs())
}

func (app *App) cancelJobHandler(c *gin.Context) {
	jobID := c.Param("job_id")
	if err := jobStore.cancel(jobID); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "message": "Cancellation requested"})
}

// Section for local-db actions

func (app *App) getAnalysesHandler(c *gin.Context) {
	analyses, err := GetAllLeadAnalyses(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analyses"})
		log.Errorf("Failed to retrieve analyses: %v", err)
		return
	}
	c.JSON(http.StatusOK, analyses)
}

// loadAnalysis resolves the :id parameter, writing the error response itself when it fails
func (app *App) loadAnalysis(c *gin.Context) (*LeadAnalysis, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid analysis ID"})
		return nil, false
	}

	record, err := GetLeadAnalysis(app.Database, uint(id))
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusNotFound {
			c.JSON(status, gin.H{"error": "Analysis not found"})
		} else {
			c.JSON(status, gin.H{"error": "Failed to retrieve analysis"})
			log.Errorf("Failed to retrieve analysis %d: %v", id, err)
		}
		return nil, false
	}
	return record, true
}

func (app *App) getAnalysisHandler(c *gin.Context) {
	record, ok := app.loadAnalysis(c)
	if !ok {
		return
	}

	result, err := record.Result()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored result is unreadable"})
		log.Errorf("Stored result of analysis %d is unreadable: %v", record.ID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analysis": record,
		"result":   result,
		"pages":    crawler.ParsePages(record.WebsiteContext),
	})
}

func (app *App) deleteAnalysisHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid analysis ID"})
		return
	}
	if err := DeleteLeadAnalysis(app.Database, uint(id)); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (app *App) downloadAnalysisJSONHandler(c *gin.Context) {
	record, ok := app.loadAnalysis(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="lead_analysis_%s.json"`, urlSlug(record.URL)))
	c.Data(http.StatusOK, "application/json", []byte(record.ResultJSON))
}

func (app *App) downloadContextHandler(c *gin.Context) {
	record, ok := app.loadAnalysis(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="website_context_%s.txt"`, urlSlug(record.URL)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(record.WebsiteContext))
}

// getWebsitesHandler handles the GET /api/websites endpoint
func (app *App) getWebsitesHandler(c *gin.Context) {
	urls, err := readWebsitesList(websitesFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	analyzed, err := GetAnalyzedURLs(app.Database)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve analyses"})
		log.Errorf("Failed to retrieve analyzed websites: %v", err)
		return
	}

	websites := make([]gin.H, 0, len(urls))
	for _, u := range urls {
		websites = append(websites, gin.H{"url": u, "analyzed": analyzed[u]})
	}
	c.JSON(http.StatusOK, gin.H{"file": websitesFile, "count": len(websites), "websites": websites})
}

// batchHandler handles the POST /api/batch endpoint
func (app *App) batchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request payload: %v", err)})
		return
	}

	urls := req.URLs
	if len(urls) == 0 {
		var err error
		urls, err = readWebsitesList(websitesFile)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	jobIDs, skipped, err := app.enqueueWebsites(urls, req.SkipAnalyzed)
	if err != nil && len(jobIDs) == 0 {
		c.JSON(errorStatus(err), gin.H{"error": err.Error(), "skipped": skipped})
		return
	}

	response := gin.H{"job_ids": jobIDs, "queued": len(jobIDs), "skipped": skipped}
	if err != nil {
		response["error"] = err.Error()
	}
	c.JSON(http.StatusAccepted, response)
}

// getPromptsHandler handles the GET /api/prompts endpoint
func getPromptsHandler(c *gin.Context) {
	templateMutex.RLock()
	defer templateMutex.RUnlock()

	prompts := map[string]string{leadScorePromptFile: defaultLeadScoreTemplate}

	entries, err := os.ReadDir(promptsDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read prompts directory"})
		log.Errorf("Failed to read prompts directory: %v", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tmpl" {
			continue
		}
		content, err := os.ReadFile(filepath.Join(promptsDir, entry.Name()))
		if err != nil {
			log.Warnf("Could not read prompt %s: %v", entry.Name(), err)
			continue
		}
		prompts[entry.Name()] = string(content)
	}

	c.JSON(http.StatusOK, prompts)
}

// validPromptFilename rejects anything that is not a plain .tmpl file name
func validPromptFilename(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.HasPrefix(name, ".") &&
		filepath.Ext(name) == ".tmpl"
}

// updatePromptsHandler handles the POST /api/prompts endpoint
func updatePromptsHandler(c *gin.Context) {
	var req struct {
		Filename string `json:"filename" binding:"required"`
		Content  string `json:"content" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	if !validPromptFilename(req.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}

	tmpl, err := parsePromptTemplate(strings.TrimSuffix(req.Filename, ".tmpl"), req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid template: %v", err)})
		return
	}

	templateMutex.Lock()
	defer templateMutex.Unlock()

	if err := os.MkdirAll(promptsDir, os.ModePerm); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create prompts directory"})
		return
	}
	if err := os.WriteFile(filepath.Join(promptsDir, req.Filename), []byte(req.Content), 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to write prompt"})
		log.Errorf("Failed to write %s: %v", req.Filename, err)
		return
	}

	if req.Filename == leadScorePromptFile {
		leadScoreTemplate = tmpl
	}

	c.Status(http.StatusOK)
}

func getSettingsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, currentSettings())
}

func updateSettingsHandler(c *gin.Context) {
	var req Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	if req.DefaultMaxPages < constants.MinMaxPages || req.DefaultMaxPages > constants.MaxMaxPages {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("default_max_pages must be between %d and %d", constants.MinMaxPages, constants.MaxMaxPages)})
		return
	}

	saved, err := updateSettings(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save settings"})
		log.Errorf("Failed to save settings: %v", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// newRouter registers the API and the embedded UI
func (app *App) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), ginLogger())

	api := router.Group("/api")
	{
		api.GET("/status", app.statusHandler)
		api.POST("/analyze", app.analyzeHandler)

		api.GET("/jobs", app.getAllJobsHandler)
		api.GET("/jobs/:job_id", app.getJobStatusHandler)
		api.POST("/jobs/:job_id/cancel", app.cancelJobHandler)

		api.GET("/analyses", app.getAnalysesHandler)
		api.GET("/analyses/:id", app.getAnalysisHandler)
		api.DELETE("/analyses/:id", app.deleteAnalysisHandler)
		api.GET("/analyses/:id/download/json", app.downloadAnalysisJSONHandler)
		api.GET("/analyses/:id/download/context", app.downloadContextHandler)

		api.GET("/websites", app.getWebsitesHandler)
		api.POST("/batch", app.batchHandler)

		api.GET("/prompts", getPromptsHandler)
		api.POST("/prompts", updatePromptsHandler)

		api.GET("/settings", getSettingsHandler)
		api.POST("/settings", updateSettingsHandler)
	}

	router.GET("/", func(c *gin.Context) {
		serveEmbeddedFile(c, "", "index.html")
	})
	router.GET("/assets/*filepath", func(c *gin.Context) {
		serveEmbeddedFile(c, "assets", strings.TrimPrefix(c.Param("filepath"), "/"))
	})
	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		serveEmbeddedFile(c, "", "index.html")
	})

	return router
}

// ginLogger writes one request line per call through the app logger
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"status": c.Writer.Status(),
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
		} else {
			entry.Debug("Request handled")
		}
	}
}
