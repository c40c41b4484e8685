package config

import (
	"errors"
	"os"
	"strconv"
)

// Config represents the application configuration
// This struct contains all configuration parameters for the application
type Config struct {
	// AWS-specific configuration
	AWSRegion         string
	DynamoDBTableName string

	// Environment and region info
	Environment string
	Region      string

	// Matching engine tunables
	AutoMatchThreshold float64
	MatchDateWindow    int
	StatementBatchSize int

	// Lambda detection flag (cached)
	isLambda bool
}

// LoadFromEnv loads the configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Create a new config object and load values from environment
	cfg := &Config{}

	// Required environment variables
	cfg.DynamoDBTableName = os.Getenv("DYNAMODB_TABLE_NAME")
	if cfg.DynamoDBTableName == "" {
		return nil, errors.New("DYNAMODB_TABLE_NAME environment variable is required")
	}

	// Environment and region info
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "dev" // Default to dev environment
	}

	cfg.Region = os.Getenv("REGION")
	if cfg.Region == "" {
		cfg.Region = "us"
	}

	// AWS Region
	cfg.AWSRegion = os.Getenv("AWS_REGION")
	if cfg.AWSRegion == "" {
		// Default AWS regions based on our region code
		switch cfg.Region {
		case "us":
			cfg.AWSRegion = "us-west-2"
		case "eu":
			cfg.AWSRegion = "eu-west-1"
		case "jp":
			cfg.AWSRegion = "ap-northeast-1"
		default:
			cfg.AWSRegion = "us-west-2" // Default fallback
		}
	}

	// Matching engine tunables, all optional
	cfg.AutoMatchThreshold = 0.95
	if v := os.Getenv("AUTO_MATCH_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return nil, errors.New("AUTO_MATCH_THRESHOLD must be a number in (0, 1]")
		}
		cfg.AutoMatchThreshold = f
	}

	cfg.MatchDateWindow = 30
	if v := os.Getenv("MATCH_DATE_WINDOW_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("MATCH_DATE_WINDOW_DAYS must be a positive integer")
		}
		cfg.MatchDateWindow = n
	}

	cfg.StatementBatchSize = 25
	if v := os.Getenv("STATEMENT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, errors.New("STATEMENT_BATCH_SIZE must be a positive integer")
		}
		cfg.StatementBatchSize = n
	}

	// Check if running in Lambda
	cfg.isLambda = os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	return cfg, nil
}

func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}

// IsLambda returns true if the application is running in AWS Lambda
func (c *Config) IsLambda() bool {
	return c.isLambda
}
