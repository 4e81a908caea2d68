package config

import (
	"time"

	"skuradar/internal/retry"
)

// ResilienceConfig groups the retry budgets for network operations that may
// be retried. Per-row search lookups are deliberately absent: a failed
// lookup degrades to "unmatched" instead of retrying.
type ResilienceConfig struct {
	TokenRequest retry.Config
	SheetAppend  retry.Config
}

var DefaultResilienceConfig = ResilienceConfig{
	TokenRequest: retry.Config{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    15 * time.Second,
	},
	SheetAppend: retry.Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    15 * time.Second,
	},
}
