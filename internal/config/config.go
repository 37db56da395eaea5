package config

import (
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	VNPay      VNPayConfig      `mapstructure:"vnpay"`
	QRBanking  QRBankingConfig  `mapstructure:"qr_banking"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
	Email        string `mapstructure:"email"`
}

// VNPayConfig holds the merchant credentials and endpoints for the VNPay
// hosted-checkout integration.
type VNPayConfig struct {
	TmnCode   string `mapstructure:"tmn_code"`
	SecretKey string `mapstructure:"secret_key"`
	URL       string `mapstructure:"url"`
	ReturnURL string `mapstructure:"return_url"`
	NotifyURL string `mapstructure:"notify_url"`
}

type QRBankingConfig struct {
	BankCode      string `mapstructure:"bank_code"`
	BankBin       string `mapstructure:"bank_bin"`
	AccountNumber string `mapstructure:"account_number"`
	AccountName   string `mapstructure:"account_name"`
}

// WithdrawalConfig carries the business parameters of the withdrawal flow.
// Amounts are denominated in coins; ExchangeRate is VND per coin.
type WithdrawalConfig struct {
	MinAmount             int64   `mapstructure:"min_amount"`
	MaxAmount             int64   `mapstructure:"max_amount"`
	ExchangeRate          int64   `mapstructure:"exchange_rate"`
	PromotionActive       bool    `mapstructure:"promotion_active"`
	PromoDiscount         float64 `mapstructure:"promo_discount"`
	PendingPurchaseExpiry int     `mapstructure:"pending_purchase_expiry_minutes"`
}

var GlobalConfig *Config

func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("withdrawal.min_amount", 50)
	viper.SetDefault("withdrawal.max_amount", 50000)
	viper.SetDefault("withdrawal.exchange_rate", 1000)
	viper.SetDefault("withdrawal.promo_discount", 0.5)
	viper.SetDefault("withdrawal.pending_purchase_expiry_minutes", 15)

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("read config failed: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("parse config failed: %v", err)
	}

	GlobalConfig = config
	return config
}
