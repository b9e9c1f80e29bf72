package pipeline

import (
	"time"

	"github.com/paritytech/command-bot-sub000/internal/git"
)

// Config holds the CI protocol settings of a Driver.
type Config struct {
	// PushBaseURL is the CI service's web URL, e.g. https://gitlab.com.
	PushBaseURL string
	// PushNamespace is the group holding the CI projects; a task for
	// owner/repo runs in <PushNamespace>/<repo>.
	PushNamespace string
	// PushToken is embedded in the push URL and redacted from logs.
	PushToken string

	Author git.Author

	DefaultImage   string
	DefaultTags    []string
	DefaultTimeout string

	ScriptsRepository string
	ScriptsRef        string
	ScriptsDir        string

	PollInterval         time.Duration
	MaxPollErrors        int
	RegistrationPolls    int
	RegistrationInterval time.Duration
	RegistrationGrace    time.Duration
	CreateAttempts       int
	CreateRetryDelay     time.Duration
}

// DefaultConfig returns the timings the CI protocol is tuned for.
func DefaultConfig() Config {
	return Config{
		PushBaseURL:          "https://gitlab.com",
		Author:               git.Author{Name: "command-bot", Email: "command-bot@users.noreply.github.com"},
		DefaultTimeout:       "24 hours",
		ScriptsDir:           ".git/.scripts",
		PollInterval:         16 * time.Second,
		MaxPollErrors:        2,
		RegistrationPolls:    5,
		RegistrationInterval: 5 * time.Second,
		RegistrationGrace:    5 * time.Second,
		CreateAttempts:       3,
		CreateRetryDelay:     2 * time.Second,
	}
}
