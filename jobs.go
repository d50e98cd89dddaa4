package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead-qualifier/crawler"
)

// Job statuses
const (
	JobPending    = "pending"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
	JobCancelled  = "cancelled"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
	ErrQueueFull   = errors.New("job queue is full")
)

// Job represents a website analysis running in the background
type Job struct {
	ID           string          `json:"job_id"`
	URL          string          `json:"url"`
	MaxPages     int             `json:"max_pages"`
	Status       string          `json:"status"`
	Events       []crawler.Event `json:"events"`
	PagesCrawled int             `json:"pages_crawled"`
	AnalysisID   uint            `json:"analysis_id,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (j *Job) finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

// snapshot copies the job so callers can read it without holding the store lock
func (j *Job) snapshot() *Job {
	c := *j
	c.Events = append([]crawler.Event(nil), j.Events...)
	return &c
}

// JobStore manages jobs and their statuses
type JobStore struct {
	sync.RWMutex
	jobs       map[string]*Job
	cancellers map[string]context.CancelFunc
}

func newJobStore() *JobStore {
	return &JobStore{
		jobs:       make(map[string]*Job),
		cancellers: make(map[string]context.CancelFunc),
	}
}

var (
	jobStore = newJobStore()
	jobQueue = make(chan *Job, 100) // Buffered channel with capacity of 100 jobs
)

func generateJobID() string {
	return uuid.New().String()
}

// submitJob validates the URL, registers a pending job and queues it
func submitJob(rawURL string, maxPages int) (*Job, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	job := &Job{
		ID:        generateJobID(),
		URL:       normalized,
		MaxPages:  clampMaxPages(maxPages),
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	jobStore.addJob(job)

	select {
	case jobQueue <- job:
	default:
		jobStore.finish(job.ID, JobFailed, 0, ErrQueueFull.Error())
		return nil, ErrQueueFull
	}
	log.WithField("job_id", job.ID).Infof("Job queued for %s (max %d pages)", job.URL, job.MaxPages)
	return job.snapshot(), nil
}

func (store *JobStore) addJob(job *Job) {
	store.Lock()
	defer store.Unlock()
	store.jobs[job.ID] = job
}

func (store *JobStore) getJob(jobID string) (*Job, bool) {
	store.RLock()
	defer store.RUnlock()
	job, exists := store.jobs[jobID]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// GetAllJobs returns snapshots of all jobs, newest first
func (store *JobStore) GetAllJobs() []*Job {
	store.RLock()
	defer store.RUnlock()

	jobs := make([]*Job, 0, len(store.jobs))
	for _, job := range store.jobs {
		jobs = append(jobs, job.snapshot())
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	return jobs
}

// start moves a pending job to in_progress and registers its cancel function.
// It returns false when the job was cancelled while waiting in the queue.
func (store *JobStore) start(jobID string, cancel context.CancelFunc) bool {
	store.Lock()
	defer store.Unlock()
	job, exists := store.jobs[jobID]
	if !exists || job.Status != JobPending {
		return false
	}
	job.Status = JobInProgress
	job.UpdatedAt = time.Now()
	store.cancellers[jobID] = cancel
	return true
}

func (store *JobStore) addEvent(jobID string, event crawler.Event) {
	store.Lock()
	defer store.Unlock()
	if job, exists := store.jobs[jobID]; exists {
		job.Events = append(job.Events, event)
		job.PagesCrawled = event.Crawled
		job.UpdatedAt = time.Now()
	}
}

// finish records the final status and forgets the cancel function
func (store *JobStore) finish(jobID, status string, analysisID uint, errMsg string) {
	store.Lock()
	defer store.Unlock()
	delete(store.cancellers, jobID)
	if job, exists := store.jobs[jobID]; exists {
		job.Status = status
		job.AnalysisID = analysisID
		job.Error = errMsg
		job.UpdatedAt = time.Now()
	}
}

// cancel stops a running job or marks a pending one as cancelled
func (store *JobStore) cancel(jobID string) error {
	store.Lock()
	defer store.Unlock()

	job, exists := store.jobs[jobID]
	if !exists {
		return ErrJobNotFound
	}
	if job.finished() {
		return fmt.Errorf("%w: %s", ErrJobFinished, job.Status)
	}

	if cancel, running := store.cancellers[jobID]; running {
		cancel()
		return nil
	}
	job.Status = JobCancelled
	job.Error = "Job cancelled by user"
	job.UpdatedAt = time.Now()
	return nil
}

func startWorkerPool(app *App, numWorkers int) {
	queue := jobQueue
	for i := 0; i < numWorkers; i++ {
		go func(workerID int) {
			log.Infof("Worker %d started", workerID)
			for job := range queue {
				log.Debugf("Worker %d processing job: %s", workerID, job.ID)
				processJob(app, job)
			}
		}(i)
	}
}

func processJob(app *App, job *Job) {
	logger := log.WithField("job_id", job.ID)

	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !jobStore.start(job.ID, cancel) {
		logger.Infof("Skipping job for %s, it was cancelled before it started", job.URL)
		return
	}

	record, err := app.analyzeWebsite(jobCtx, job.URL, job.MaxPages, func(e crawler.Event) {
		jobStore.addEvent(job.ID, e)
	})
	if err != nil {
		if errors.Is(jobCtx.Err(), context.Canceled) {
			jobStore.finish(job.ID, JobCancelled, 0, "Job cancelled by user")
			logger.Info("Job cancelled")
		} else {
			logger.Errorf("Error analyzing %s: %v", job.URL, err)
			jobStore.finish(job.ID, JobFailed, 0, err.Error())
		}
		return
	}

	jobStore.finish(job.ID, JobCompleted, record.ID, "")
	logger.Infof("Job completed with total score %d", record.TotalScore)
}
