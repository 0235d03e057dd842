package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Long-polling timeout for getUpdates, in seconds
	UpdateTimeout int
	// Prefix for learner ids created from Telegram chats
	LearnerPrefix string
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout: 60,
		LearnerPrefix: "tg",
	}
}
