package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mirovand/licensehub-api/internal/domain/apikey"
)

const licenseKeyPrefix = "LH"

var licenseKeyPattern = regexp.MustCompile(`^` + licenseKeyPrefix + `(-[0-9A-F]{4}){4}$`)

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateLicenseKey produces a key of the form LH-XXXX-XXXX-XXXX-XXXX, the
// X groups being uppercase hex drawn from a cryptographically secure source.
// Keys carry no counter or timestamp component, so they cannot be enumerated.
func GenerateLicenseKey() (string, error) {
	b, err := generateRandomBytes(8)
	if err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	hexStr := strings.ToUpper(hex.EncodeToString(b))
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		licenseKeyPrefix, hexStr[0:4], hexStr[4:8], hexStr[8:12], hexStr[12:16]), nil
}

func ValidLicenseKeyFormat(key string) bool {
	return licenseKeyPattern.MatchString(key)
}

func generateRandomString(length int) (string, error) {
	byteLength := (length*3 + 3) / 4
	b, err := generateRandomBytes(byteLength)
	if err != nil {
		return "", err
	}

	str := base64.URLEncoding.EncodeToString(b)
	str = strings.ReplaceAll(str, "-", "")
	str = strings.ReplaceAll(str, "_", "")
	if len(str) > length {
		return str[:length], nil
	}

	return str, nil
}

func GenerateAPIKey() (fullKey string, prefix string, keyHash string, err error) {
	prefix, err = generateRandomString(apikey.APIKeyPrefixLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}

	secret, err := generateRandomString(apikey.APIKeySecretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	fullKey = fmt.Sprintf(apikey.APIKeyFormat, prefix, secret)

	hashBytes := sha256.Sum256([]byte(fullKey))
	keyHash = fmt.Sprintf("%x", hashBytes)

	return fullKey, prefix, keyHash, nil
}

func HashAPIKey(fullKey string) string {
	hashBytes := sha256.Sum256([]byte(fullKey))
	return fmt.Sprintf("%x", hashBytes)
}
