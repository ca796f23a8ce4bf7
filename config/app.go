package config

type AppConfig struct {
	Database struct {
		Host            string `toml:"host" env:"SATHUNT_DB_HOST"`
		Port            string `toml:"port" env:"SATHUNT_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"SATHUNT_DB_USER"`
		Password        string `toml:"password" env:"SATHUNT_DB_PASSWORD"`
		DB              string `toml:"db" env:"SATHUNT_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"SATHUNT_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"SATHUNT_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"SATHUNT_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"SATHUNT_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"SATHUNT_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"SATHUNT_REDIS_HOST"`
		Port     string `toml:"port" env:"SATHUNT_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"SATHUNT_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"SATHUNT_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	LND struct {
		GRPCHost              string `toml:"grpc_host" env:"SATHUNT_LND_GRPC_HOST"`
		GRPCPort              string `toml:"grpc_port" env:"SATHUNT_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"SATHUNT_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"SATHUNT_LND_MACAROON_PATH"`
		Network               string `toml:"network" env:"SATHUNT_LND_NETWORK" env-default:"mainnet"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"SATHUNT_LND_PAYMENT_TIMEOUT_SECONDS" env-default:"60"`
		MaxPaymentFeeSats     int64  `toml:"max_payment_fee_sats" env:"SATHUNT_LND_MAX_PAYMENT_FEE_SATS" env-default:"10"`
	} `toml:"lnd"`

	Treasure struct {
		TimeToFullDays    int     `toml:"time_to_full_days" env:"SATHUNT_TIME_TO_FULL_DAYS" env-default:"21"`
		MaxFillPercentage float64 `toml:"max_fill_percentage" env:"SATHUNT_MAX_FILL_PERCENTAGE" env-default:"0.1"`
		PublicBaseURL     string  `toml:"public_base_url" env:"SATHUNT_PUBLIC_BASE_URL"`
		DataDir           string  `toml:"data_dir" env:"SATHUNT_DATA_DIR" env-default:"./data"`
	} `toml:"treasure"`

	Server struct {
		Host string `toml:"host" env:"SATHUNT_HOST" env-default:"0.0.0.0"`
		Port string `toml:"port" env:"SATHUNT_PORT" env-default:"8080"`
	} `toml:"server"`

	Donation struct {
		StreamName    string `toml:"stream_name" env:"SATHUNT_DONATION_STREAM" env-default:"donations"`
		ConsumerGroup string `toml:"consumer_group" env:"SATHUNT_DONATION_GROUP" env-default:"donation_workers"`
	} `toml:"donation"`
}
