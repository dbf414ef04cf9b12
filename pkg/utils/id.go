package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Counter used when the random source is unavailable
var idCounter uint64

// GenerateRunID generates a calibration run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	b := make([]byte, 4)
	_, err := rand.Read(b)
	if err != nil {
		count := atomic.AddUint64(&idCounter, 1)
		return fmt.Sprintf("cal-%s-%x", timestamp, count)
	}
	return fmt.Sprintf("cal-%s-%s", timestamp, hex.EncodeToString(b))
}
