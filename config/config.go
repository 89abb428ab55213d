package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	CategoryPath     string        `yaml:"category_path"`
	TextPath         string        `yaml:"text_path"`
	StartPage        int           `yaml:"start_page"` // 0 derives the page from the category pagination
	EndPage          int           `yaml:"end_page"`   // 0 derives the page from the category pagination
	DestFolder       string        `yaml:"dest_folder"`
	JSONPath         string        `yaml:"json_path"`
	SkipImages       bool          `yaml:"skip_images"`
	SkipText         bool          `yaml:"skip_text"`
	OutputFormat     string        `yaml:"output_format"` // json, csv, or dual
	Parallelism      int           `yaml:"parallelism"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxBodyBytes     int           `yaml:"max_body_bytes"`
	ImageCacheSize   int           `yaml:"image_cache_size"`
	UserAgent        string        `yaml:"user_agent"`
	RespectRobotsTxt bool          `yaml:"respect_robots_txt"`
	Verbose          bool          `yaml:"verbose"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// DefaultConfig returns defaults for the sci-fi category of tululu.org.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://tululu.org",
		CategoryPath:     "/l55/",
		TextPath:         "/txt.php",
		StartPage:        0,
		EndPage:          0,
		DestFolder:       ".",
		JSONPath:         ".",
		OutputFormat:     "json",
		Parallelism:      4,
		Timeout:          30 * time.Second,
		MaxBodyBytes:     50 * 1024 * 1024,
		ImageCacheSize:   1024,
		UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// CategoryURL returns the absolute URL of the category root page.
func (c *Config) CategoryURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.Trim(c.CategoryPath, "/") + "/"
}

// PageURL returns the absolute URL of the given category page.
func (c *Config) PageURL(page int) string {
	return fmt.Sprintf("%s%d/", c.CategoryURL(), page)
}

// TextURL returns the plain-text endpoint for a book id.
func (c *Config) TextURL(bookID string) string {
	query := url.Values{}
	query.Set("id", bookID)
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(c.TextPath, "/") + "?" + query.Encode()
}

// RangeConfigured reports whether both ends of the crawl range were set explicitly.
func (c *Config) RangeConfigured() bool {
	return c.StartPage > 0 && c.EndPage > 0
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if strings.Trim(c.CategoryPath, "/") == "" {
		return fmt.Errorf("category path cannot be empty")
	}
	if strings.Trim(c.TextPath, "/") == "" {
		return fmt.Errorf("text path cannot be empty")
	}
	if c.StartPage < 0 {
		return fmt.Errorf("start page cannot be negative")
	}
	if c.EndPage < 0 {
		return fmt.Errorf("end page cannot be negative")
	}
	if c.RangeConfigured() && c.EndPage < c.StartPage {
		return fmt.Errorf("end page (%d) must not be less than start page (%d)", c.EndPage, c.StartPage)
	}
	if c.DestFolder == "" {
		return fmt.Errorf("destination folder cannot be empty")
	}
	if c.JSONPath == "" {
		return fmt.Errorf("json path cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes cannot be negative")
	}
	if c.ImageCacheSize <= 0 {
		return fmt.Errorf("image cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
