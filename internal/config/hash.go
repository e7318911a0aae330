package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint identifies the loaded source file so a restart that picked up
// an edited config shows up in the logs. Empty when no file was used.
func (c *Config) Fingerprint() (string, error) {
	if c.SourceFile == "" {
		return "", nil
	}
	h, err := ComputeBlake3Hash(c.SourceFile)
	if err != nil {
		return "", err
	}
	return "blake3:" + h[:16], nil
}
