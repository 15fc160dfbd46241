// Package config loads and validates the mediapipe YAML configuration.
//
// Values omitted from the file keep the defaults from Default. Environment
// variables are expanded in the raw YAML, and .env/.env.local files are
// loaded first without overriding the process environment.
package config
