package common

// MaskSecret redacts a sensitive string for safe logging, showing only its
// first and last four characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
