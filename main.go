package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"gorm.io/gorm"

	"lead-qualifier/crawler"
	"lead-qualifier/internal/constants"
)

// Global Variables and Constants
var (

	// Logger
	log = logrus.New()

	// Configuration, populated by loadConfig once .env has been read
	llmProvider          string
	llmModel             string
	openaiAPIKey         string
	ollamaHost           string
	ollamaAPIToken       string
	logLevel             string
	listenAddress        string
	secretsFile          string
	websitesFile         string
	batchSchedule        string
	batchConcurrency     int
	llmRequestsPerMinute float64
	llmMaxRetries        int
	llmBackoffMaxWait    time.Duration
	crawlConfig          crawler.Config

	// Resolved secret
	googleAPIKey string
	testMode     bool

	// Templates
	promptsDir        = "prompts"
	leadScoreTemplate *template.Template
	templateMutex     sync.RWMutex
)

const (
	defaultLLMProvider   = "googleai"
	defaultGoogleModel   = "gemini-2.0-flash-exp"
	leadScorePromptFile  = "lead_score_prompt.tmpl"
	websiteContextFile   = "website_context.txt"
	scoringResultsFile   = "scoring_results.json"
	defaultWebsitesFile  = "websites.txt"
	defaultSecretsFile   = "config/secrets.toml"
	defaultListenAddress = ":8080"
)

// App struct to hold dependencies
type App struct {
	Database *gorm.DB
	LLM      llms.Model
	TestMode bool
	Crawl    crawler.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadEnvironment reads .env (if present) and then all configuration from the environment
func loadEnvironment() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Could not load .env file: %v", err)
	}
	loadConfig()
	initLogger()
}

// loadConfig populates the configuration globals from environment variables
func loadConfig() {
	llmProvider = strings.ToLower(envString("LLM_PROVIDER", defaultLLMProvider))
	llmModel = os.Getenv("LLM_MODEL")
	if llmModel == "" && llmProvider == defaultLLMProvider {
		llmModel = defaultGoogleModel
	}
	openaiAPIKey = os.Getenv("OPENAI_API_KEY")
	ollamaHost = envString("OLLAMA_HOST", "http://127.0.0.1:11434")
	ollamaAPIToken = os.Getenv("OLLAMA_API_TOKEN")
	logLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	listenAddress = envString("LISTEN_ADDRESS", defaultListenAddress)
	secretsFile = envString("SECRETS_FILE", defaultSecretsFile)
	websitesFile = envString("WEBSITES_FILE", defaultWebsitesFile)
	batchSchedule = os.Getenv("BATCH_SCHEDULE")
	batchConcurrency = envInt("BATCH_CONCURRENCY", 2)
	llmRequestsPerMinute = envFloat("LLM_REQUESTS_PER_MINUTE", 0)
	llmMaxRetries = envInt("LLM_MAX_RETRIES", 3)
	llmBackoffMaxWait = envDuration("LLM_BACKOFF_MAX_WAIT", 30*time.Second)
	tokenLimit = envInt("TOKEN_LIMIT", 0)

	crawlConfig = crawler.DefaultConfig()
	crawlConfig.Delay = envDuration("CRAWL_DELAY", crawler.DefaultDelay)
	crawlConfig.Timeout = envDuration("CRAWL_TIMEOUT", crawler.DefaultTimeout)
	crawlConfig.RetryMax = envInt("CRAWL_RETRY_MAX", 2)
	crawlConfig.UserAgent = envString("CRAWL_USER_AGENT", crawler.DefaultUserAgent)
}

func initLogger() {
	switch logLevel {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		if logLevel != "" {
			log.Fatalf("Invalid log level: '%s'.", logLevel)
		}
	}

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	crawler.SetLogger(log)
}

// validateEnvVars ensures the selected provider can be reached
func validateEnvVars() {
	switch llmProvider {
	case "googleai":
	case "openai":
		if openaiAPIKey == "" {
			log.Fatal("Please set the OPENAI_API_KEY environment variable for OpenAI provider.")
		}
	case "ollama":
	default:
		log.Fatalf("Please set the LLM_PROVIDER environment variable to 'googleai', 'openai' or 'ollama' (got '%s').", llmProvider)
	}

	if llmModel == "" {
		log.Fatal("Please set the LLM_MODEL environment variable.")
	}
}

// resolveSecrets reads the secrets file and decides whether the app runs in test mode.
// Only the Gemini provider needs GOOGLE_API_KEY, so test mode never applies to the others.
func resolveSecrets() {
	secrets, err := loadSecrets(secretsFile)
	if err != nil {
		log.Fatalf("Failed to load secrets: %v", err)
	}

	if llmProvider != "googleai" {
		googleAPIKey, testMode = "", false
		return
	}

	googleAPIKey, testMode = resolveGoogleAPIKey(os.Getenv(googleAPIKeyName), secrets)
	if testMode {
		log.Warnf("%s not found in environment or %s. Running in test mode with sample results.", googleAPIKeyName, secretsFile)
	}
}

// newApp wires database, templates and LLM for commands that score websites
func newApp(ctx context.Context) (*App, error) {
	validateEnvVars()
	resolveSecrets()
	loadSettings()

	database := InitializeDB()
	loadTemplates()

	app := &App{
		Database: database,
		TestMode: testMode,
		Crawl:    crawlConfig,
	}

	if !testMode {
		llm, err := createLLM(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		app.LLM = llm
	}

	return app, nil
}

// loadTemplates loads the scoring template from disk or writes the default one
func loadTemplates() {
	templateMutex.Lock()
	defer templateMutex.Unlock()

	if err := os.MkdirAll(promptsDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create prompts directory: %v", err)
	}

	path := filepath.Join(promptsDir, leadScorePromptFile)
	content, err := os.ReadFile(path)
	if err != nil {
		log.Infof("Could not read %s, using default template: %v", path, err)
		content = []byte(defaultLeadScoreTemplate)
		if err := os.WriteFile(path, content, 0644); err != nil {
			log.Fatalf("Failed to write default lead score template to disk: %v", err)
		}
	}

	tmpl, err := parsePromptTemplate("lead_score", string(content))
	if err != nil {
		log.Errorf("Failed to parse %s, falling back to default template: %v", path, err)
		tmpl = template.Must(parsePromptTemplate("lead_score", defaultLeadScoreTemplate))
	}
	leadScoreTemplate = tmpl
}

func parsePromptTemplate(name, content string) (*template.Template, error) {
	return template.New(name).Funcs(sprig.FuncMap()).Parse(content)
}

// createLLM creates the appropriate LLM client based on the provider
func createLLM(ctx context.Context) (llms.Model, error) {
	var (
		llm llms.Model
		err error
	)

	switch llmProvider {
	case "googleai":
		llm, err = NewGoogleAIProvider(ctx, llmModel, googleAPIKey, nil)
	case "openai":
		if openaiAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is not set")
		}
		llm, err = openai.New(
			openai.WithModel(llmModel),
			openai.WithToken(openaiAPIKey),
		)
	case "ollama":
		opts := []ollama.Option{
			ollama.WithModel(llmModel),
			ollama.WithServerURL(ollamaHost),
		}
		if ollamaAPIToken != "" {
			opts = append(opts, ollama.WithHTTPClient(newBearerHTTPClient(ollamaAPIToken)))
		}
		llm, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmProvider)
	}
	if err != nil {
		return nil, err
	}

	return NewRateLimitedLLM(llm, RateLimitConfig{
		RequestsPerMinute: llmRequestsPerMinute,
		MaxRetries:        llmMaxRetries,
		BackoffMaxWait:    llmBackoffMaxWait,
	}), nil
}

// clampMaxPages keeps a requested page budget inside the allowed range.
// Zero selects the configured default.
func clampMaxPages(maxPages int) int {
	if maxPages == 0 {
		maxPages = currentSettings().DefaultMaxPages
	}
	if maxPages < constants.MinMaxPages {
		return constants.MinMaxPages
	}
	if maxPages > constants.MaxMaxPages {
		return constants.MaxMaxPages
	}
	return maxPages
}

func envString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("Invalid %s value '%s', using %d", name, v, def)
		return def
	}
	return parsed
}

func envFloat(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("Invalid %s value '%s', using %v", name, v, def)
		return def
	}
	return parsed
}

func envDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("Invalid %s value '%s', using %v", name, v, def)
		return def
	}
	return parsed
}
