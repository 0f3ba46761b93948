package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.nanobot/workspace",
			LogLevel:  "info",
		},
		Channels: ChannelsConfig{
			Zalo: ZaloConfig{
				Enabled:   false,
				BridgeURL: "ws://localhost:8787",
				UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
		},
		Transcription: TranscriptionConfig{
			APIBase: "https://api.groq.com/openai/v1",
			Model:   "whisper-large-v3",
		},
	}
}
