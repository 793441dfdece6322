package config

// Defaults returns a config suitable for local development against devnet.
// API keys come from the environment via ${VAR} expansion in the config file.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          3000,
			AllowedOrigin: "*",
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o",
			},
			Expand: ExpandConfig{
				APIBase: "https://api.expand.network",
			},
			Tracker: TrackerConfig{
				APIBase: "https://data.solanatracker.io",
			},
		},
		Chain: ChainConfig{
			RPCURL:                "https://api.devnet.solana.com",
			Cluster:               "devnet",
			Commitment:            "confirmed",
			ConfirmTimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			Path: "~/.solgate/solgate.db",
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Transfer: TransferConfig{
			// ~0.000005 SOL, the flat system-transfer fee estimate.
			EstimatedFeeLamports: 5000,
		},
	}
}
