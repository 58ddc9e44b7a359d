// Package config loads process configuration from environment variables.
//
// It combines github.com/joho/godotenv, which reads optional dotenv files
// into the process environment, with github.com/caarlos0/env/v11, which
// parses the environment into a struct using env and envDefault tags.
//
//	type Config struct {
//		ContextPath string            `env:"DISPATCH_CONTEXT_PATH"`
//		HTTP        httpserver.Config
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg, config.WithEnvFiles(".env", ".env.local")); err != nil {
//		return err
//	}
//
// Missing dotenv files are skipped. Variables already present in the process
// environment win over dotenv values unless WithOverload is given.
//
// Parse failures are joined with ErrParsingConfig and unreadable dotenv files
// with ErrLoadingEnvFile.
package config
