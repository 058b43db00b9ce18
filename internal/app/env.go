package app

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvPath is the workspace .env file read at start-up.
func EnvPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".env")
}

// LoadEnv exports the workspace .env without overriding variables already set.
func LoadEnv(workspace string) error {
	err := godotenv.Load(EnvPath(workspace))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// SetEnvValue writes or replaces one key in the workspace .env.
func SetEnvValue(workspace, key, value string) error {
	path := EnvPath(workspace)
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}
	values[key] = value
	return godotenv.Write(values, path)
}
