// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RelyingParty            `yaml:"relying_party"`
	Chain                   `yaml:"chain"`
	Payment                 `yaml:"payment"`
	RabbitMQ                `yaml:"rabbitmq"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RelyingParty структура с настройками WebAuthn: идентификация сервиса
// и времена жизни сессий и челленджей.
type RelyingParty struct {
	RPName       string        `yaml:"rp_name" env-default:"Passkey Paywall"`
	RPID         string        `yaml:"rp_id" env-default:"localhost"`
	RPOrigin     string        `yaml:"rp_origin" env-default:"http://localhost:3000"`
	SessionTTL   time.Duration `yaml:"session_ttl" env-default:"24h"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl" env-default:"5m"`
}

// Chain структура с настройками блокчейн-сети для расчетов.
// Приватный ключ сервисного кошелька передается только через переменную окружения.
type Chain struct {
	ChainID      int64  `yaml:"chain_id" env-default:"43113"`
	ChainName    string `yaml:"chain_name" env-default:"Avalanche Fuji Testnet"`
	RPCURL       string `yaml:"rpc_url" env-default:"https://api.avax-test.network/ext/bc/C/rpc"`
	ExplorerURL  string `yaml:"explorer_url" env-default:"https://testnet.snowtrace.io"`
	Currency     string `yaml:"currency" env-default:"AVAX"`
	PayeeAddress string `yaml:"payee_address"`
	PrivateKey   string `yaml:"private_key" env:"CHAIN_PRIVATE_KEY"`
}

// Payment структура с политиками платежного движка.
type Payment struct {
	DescriptorTTL       time.Duration `yaml:"descriptor_ttl" env-default:"30m"`
	AllowRepeatPurchase bool          `yaml:"allow_repeat_purchase" env-default:"true"`
}

// RabbitMQ структура для настройки подключения к брокеру событий.
// Пустой rabbit_url отключает публикацию событий.
type RabbitMQ struct {
	RabbitURL string `yaml:"rabbit_url"`
	Exchange  string `yaml:"exchange" env-default:"payments"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, прочитанный из CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"RelyingParty:\n"+
			"  RPID: %s\n"+
			"  Origin: %s\n"+
			"  SessionTTL: %s\n"+
			"Chain:\n"+
			"  ChainID: %d\n"+
			"  RPC: %s\n"+
			"  Payee: %s\n",
		c.Env,
		c.StorageConnectionString,
		c.AddressRedis,
		c.DB,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.RPID,
		c.RPOrigin,
		c.SessionTTL,
		c.ChainID,
		c.RPCURL,
		c.PayeeAddress,
	)
}
