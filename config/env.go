package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvBool parses key as a boolean.
func EnvBool(key string) (bool, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overrides cfg with SCRAPER_* variables.
func ApplyEnv(cfg *Config) error {
	ints := map[string]*int{
		"SCRAPER_START_PAGE": &cfg.StartPage,
		"SCRAPER_END_PAGE":   &cfg.EndPage,
		"SCRAPER_PARALLEL":   &cfg.Parallelism,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"SCRAPER_SKIP_IMGS": &cfg.SkipImages,
		"SCRAPER_SKIP_TXT":  &cfg.SkipText,
	}
	for key, dst := range bools {
		value, ok, err := EnvBool(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	strs := map[string]*string{
		"SCRAPER_BASE_URL":     &cfg.BaseURL,
		"SCRAPER_DEST_FOLDER":  &cfg.DestFolder,
		"SCRAPER_JSON_PATH":    &cfg.JSONPath,
		"SCRAPER_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := EnvString(key); ok {
			*dst = value
		}
	}
	return nil
}
