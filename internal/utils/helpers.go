package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a string to a URL-friendly slug
func Slugify(text string) string {
	slug := strings.ToLower(text)

	// Replace spaces and special characters with hyphens
	slug = nonSlugChars.ReplaceAllString(slug, "-")

	return strings.Trim(slug, "-")
}

// UniqueSlug returns base, or base-2, base-3... for the first candidate taken reports as free
func UniqueSlug(base string, taken func(string) (bool, error)) (string, error) {
	if base == "" {
		base = "item"
	}
	candidate := base
	for i := 2; ; i++ {
		exists, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// FormatCurrency formats a number as US dollars
func FormatCurrency(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// GenerateRandomString generates a random hex string of specified length
func GenerateRandomString(length int) string {
	bytes := make([]byte, (length+1)/2)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return hex.EncodeToString(bytes)[:length]
}

// TruncateString truncates a string to specified length with ellipsis
func TruncateString(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	if maxLength <= 3 {
		return text[:maxLength]
	}

	return text[:maxLength-3] + "..."
}

// RoundToDecimalPlaces rounds a float to specified decimal places
func RoundToDecimalPlaces(value float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(value*multiplier) / multiplier
}

// RoundToCents rounds a monetary amount to two decimal places
func RoundToCents(value float64) float64 {
	return RoundToDecimalPlaces(value, 2)
}

// Contains checks if a slice contains an item
func Contains[T comparable](slice []T, item T) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// SafeStringPointer returns nil for blank strings
func SafeStringPointer(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// DerefString safely dereferences a string pointer
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
