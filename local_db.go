package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// LeadAnalysis represents the schema of the lead_analyses table
type LeadAnalysis struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	URL            string    `gorm:"size:2048;not null;index" json:"url"`
	TotalScore     int       `gorm:"not null" json:"total_score"`
	Disqualified   bool      `gorm:"not null;default:false" json:"disqualified"`
	Priority       string    `gorm:"size:32;not null" json:"priority"`
	PagesCrawled   int       `gorm:"not null" json:"pages_crawled"`
	PagesFailed    int       `gorm:"not null;default:0" json:"pages_failed"`
	TestMode       bool      `gorm:"not null;default:false" json:"test_mode"`
	ResultJSON     string    `gorm:"size:1048576" json:"-"`
	WebsiteContext string    `gorm:"size:16777216" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Result decodes the stored lead score
func (a *LeadAnalysis) Result() (*LeadScore, error) {
	var score LeadScore
	if a.ResultJSON == "" {
		return nil, errors.New("analysis has no stored result")
	}
	if err := json.Unmarshal([]byte(a.ResultJSON), &score); err != nil {
		return nil, err
	}
	return &score, nil
}

// InitializeDB initializes the SQLite database and migrates the schema
func InitializeDB() *gorm.DB {
	dbDir := "db"
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create db directory: %v", err)
	}

	db, err := openDB(filepath.Join(dbDir, "lead_qualifier.db"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

// openDB connects to the SQLite database at dsn and migrates the schema
func openDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&LeadAnalysis{}); err != nil {
		return nil, err
	}
	return db, nil
}

// InsertLeadAnalysis inserts a new analysis record and fills in its ID
func InsertLeadAnalysis(db *gorm.DB, record *LeadAnalysis) error {
	return db.Create(record).Error
}

// GetAllLeadAnalyses retrieves all analyses, newest first
func GetAllLeadAnalyses(db *gorm.DB) ([]LeadAnalysis, error) {
	var records []LeadAnalysis
	result := db.Omit("website_context").Order("created_at DESC, id DESC").Find(&records)
	return records, result.Error
}

// GetLeadAnalysis retrieves a single analysis by ID
func GetLeadAnalysis(db *gorm.DB, id uint) (*LeadAnalysis, error) {
	var record LeadAnalysis
	result := db.First(&record, id)
	return &record, result.Error
}

// GetLatestLeadAnalysisByURL returns the newest analysis of url, or gorm.ErrRecordNotFound
func GetLatestLeadAnalysisByURL(db *gorm.DB, url string) (*LeadAnalysis, error) {
	var record LeadAnalysis
	result := db.Where("url = ?", url).Order("created_at DESC, id DESC").First(&record)
	return &record, result.Error
}

// GetAnalyzedURLs returns the set of URLs that have at least one analysis
func GetAnalyzedURLs(db *gorm.DB) (map[string]bool, error) {
	var urls []string
	if err := db.Model(&LeadAnalysis{}).Distinct().Pluck("url", &urls).Error; err != nil {
		return nil, err
	}
	analyzed := make(map[string]bool, len(urls))
	for _, u := range urls {
		analyzed[u] = true
	}
	return analyzed, nil
}

// DeleteLeadAnalysis removes an analysis. Deleting a missing record returns gorm.ErrRecordNotFound.
func DeleteLeadAnalysis(db *gorm.DB, id uint) error {
	result := db.Delete(&LeadAnalysis{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
