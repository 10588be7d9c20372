package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ModelTier is one entry of the summarization fallback sequence: a model name
// and the token budgets to use when calling it.
type ModelTier struct {
	Model         string
	MaxTokens     int
	ContextTokens int
}

type Config struct {
	Port        string
	Env         string
	LogFilePath string

	WorkFolder      string
	ProcessedFolder string
	MaxUploadBytes  int64
	SessionTTL      time.Duration

	DatabaseURL string
	AIAPIKey    string
	EmbedModel  string

	OCRDPI          int
	OCRMaxDimension int
	OCRBatchSize    int
	OCRJPEGQuality  int
	OCRAttempts     int
	OCRTimeout      time.Duration
	TesseractLang   string
	TesseractOEM    int
	TesseractPSM    int

	MergeBatchSize int
	ReclaimEvery   int

	ChunkSize       int
	ChunkOverlap    int
	VectorBatchSize int
	EmbedRetries    int
	EmbedTimeout    time.Duration

	SummaryTiers     []ModelTier
	SummaryTopK      int
	SummaryGroupSize int
	SummaryTimeout   time.Duration
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "development"),
		LogFilePath: getEnv("LOG_FILE_PATH", "logs/paperlens.log"),

		WorkFolder:      getEnv("WORK_FOLDER", "work"),
		ProcessedFolder: getEnv("PROCESSED_FOLDER", "processed"),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		SessionTTL:      getEnvDuration("SESSION_TTL", time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		AIAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbedModel:  getEnv("EMBED_MODEL", "text-embedding-004"),

		OCRDPI:          getEnvInt("OCR_DPI", 150),
		OCRMaxDimension: getEnvInt("OCR_MAX_DIMENSION", 1500),
		OCRBatchSize:    getEnvInt("OCR_BATCH_SIZE", 5),
		OCRJPEGQuality:  getEnvInt("OCR_JPEG_QUALITY", 85),
		OCRAttempts:     getEnvInt("OCR_ATTEMPTS", 2),
		OCRTimeout:      getEnvDuration("OCR_TIMEOUT", 2*time.Minute),
		TesseractLang:   getEnv("TESSERACT_LANG", "eng"),
		TesseractOEM:    getEnvInt("TESSERACT_OEM", 3),
		TesseractPSM:    getEnvInt("TESSERACT_PSM", 6),

		MergeBatchSize: getEnvInt("PDF_MERGE_BATCH_SIZE", 10),
		ReclaimEvery:   getEnvInt("RECLAIM_EVERY", 5),

		ChunkSize:       getEnvInt("TEXT_CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("TEXT_CHUNK_OVERLAP", 200),
		VectorBatchSize: getEnvInt("VECTOR_BATCH_SIZE", 100),
		EmbedRetries:    getEnvInt("EMBED_RETRIES", 3),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 30*time.Second),

		SummaryTiers:     parseTiers(getEnv("SUMMARY_TIERS", "")),
		SummaryTopK:      getEnvInt("SUMMARY_TOP_K", 5),
		SummaryGroupSize: getEnvInt("SUMMARY_GROUP_SIZE", 3),
		SummaryTimeout:   getEnvDuration("SUMMARY_TIMEOUT", 2*time.Minute),
	}

	return cfg
}

// parseTiers reads "model:maxTokens:contextTokens,..." from the environment.
// An empty value yields the default three-tier ladder with shrinking budgets.
func parseTiers(raw string) []ModelTier {
	if strings.TrimSpace(raw) == "" {
		return []ModelTier{
			{Model: "gemini-1.5-pro", MaxTokens: 2000, ContextTokens: 128000},
			{Model: "gemini-1.5-flash", MaxTokens: 1500, ContextTokens: 32768},
			{Model: "gemini-1.5-flash-8b", MaxTokens: 1000, ContextTokens: 16384},
		}
	}
	var tiers []ModelTier
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) != 3 || fields[0] == "" {
			log.Printf("WARN: skipping malformed SUMMARY_TIERS entry %q", part)
			continue
		}
		maxTok, err1 := strconv.Atoi(fields[1])
		ctxTok, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			log.Printf("WARN: skipping malformed SUMMARY_TIERS entry %q", part)
			continue
		}
		tiers = append(tiers, ModelTier{Model: fields[0], MaxTokens: maxTok, ContextTokens: ctxTok})
	}
	return tiers
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
