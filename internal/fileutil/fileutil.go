// Package fileutil provides file and path utility functions for the avatar service.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultDirPermissions = 0o750

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
)

// File extension constants.
const (
	extAAC  = ".aac"
	extFLAC = ".flac"
	extJPEG = ".jpeg"
	extJPG  = ".jpg"
	extM4A  = ".m4a"
	extMP3  = ".mp3"
	extOGG  = ".ogg"
	extPNG  = ".png"
	extWAV  = ".wav"
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		// MkdirAll is used to create parent directories as needed.
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, mkdirErr)
		}
	}

	return nil
}

// FormatDuration formats a duration in a human-readable string (e.g., "1h 15m",
// "5m 30.5s", "45.2s").
func FormatDuration(seconds float64) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf("%.1fs", seconds)
	}

	if seconds < secondsInHour {
		minutes := int(seconds / secondsInMinute)
		remainingSeconds := seconds - float64(minutes*secondsInMinute)

		return fmt.Sprintf("%dm %.1fs", minutes, remainingSeconds)
	}

	hours := int(seconds / secondsInHour)
	remainingSeconds := seconds - float64(hours*secondsInHour)
	remainingMinutes := int(remainingSeconds / secondsInMinute)

	return fmt.Sprintf("%dh %dm", hours, remainingMinutes)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB",
// "500.5 MB").
func FormatFileSize(bytes int64) string {
	const (
		kilobyte = 1024
		megabyte = kilobyte * 1024
		gigabyte = megabyte * 1024
	)

	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// IsValidAudioFile checks if a filename has a common audio file extension.
func IsValidAudioFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extWAV, extMP3, extFLAC, extOGG, extM4A, extAAC:
		return true
	default:
		return false
	}
}

// IsValidImageFile checks if a filename has a portrait image file extension
// the model accepts.
func IsValidImageFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case extJPG, extJPEG, extPNG:
		return true
	default:
		return false
	}
}

// GetFileExtension returns the lowercased file extension including the leading
// dot, or the empty string when there is none.
func GetFileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
