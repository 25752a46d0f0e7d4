package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config raccoglie tutta la configurazione letta dall'ambiente
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Job di controllo prezzi
	CheckInterval     time.Duration `envconfig:"CHECK_INTERVAL" default:"30m"`
	CheckWorkers      int           `envconfig:"CHECK_WORKERS" default:"4"`
	CheckBatchTimeout time.Duration `envconfig:"CHECK_BATCH_TIMEOUT" default:"10m"`

	// API esterna dei prezzi hotel
	PriceAPIURL     string        `envconfig:"PRICE_API_URL" default:"http://localhost:9090"`
	PriceAPIKey     string        `envconfig:"PRICE_API_KEY"`
	PriceAPITimeout time.Duration `envconfig:"PRICE_API_TIMEOUT" default:"15s"`

	// Canali di notifica (opzionali)
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	RabbitURL        string `envconfig:"RABBIT_URL"`
	NotifyExchange   string `envconfig:"NOTIFY_EXCHANGE" default:"price_alert.exchange"`
}

// Load carica il file .env (se presente) e poi legge le variabili d'ambiente
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("File .env non trovato, uso variabili d'ambiente del sistema")
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if c.CheckWorkers < 1 {
		c.CheckWorkers = 1
	}
	return c, nil
}

// AllowedOrigins restituisce la lista delle origini CORS consentite
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr restituisce l'indirizzo di ascolto del server HTTP
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
