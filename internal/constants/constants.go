package constants

// TestModeAPIKey is the placeholder key used when no GOOGLE_API_KEY secret is configured.
// While it is active, scoring returns sample results and no model is called.
const TestModeAPIKey = "test_key_for_demo"

// Page budget accepted for a single website analysis
const (
	MinMaxPages     = 5
	MaxMaxPages     = 50
	DefaultMaxPages = 20
)
