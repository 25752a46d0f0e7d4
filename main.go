package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"price-pulse/config"
	"price-pulse/database"
	"price-pulse/middleware"
	"price-pulse/routes"
	"price-pulse/services"
	"price-pulse/services/mq"
	"price-pulse/services/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Errore nella configurazione: %v", err)
	}

	// price-pulse issue-token <user_id>: stampa un token di accesso ed esce
	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		if err := runIssueToken(os.Stdout, cfg.JWTSecret, os.Args[2:]); err != nil {
			log.Fatalf("issue-token fallito: %v", err)
		}
		return
	}

	// Inizializza il database
	db, err := database.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Errore nell'inizializzazione del database: %v", err)
	}

	// Migrazione automatica degli schemi
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Errore durante la migrazione: %v", err)
	}

	store := services.NewGormStore(db)
	evaluator := services.NewEvaluator(store)
	priceClient := services.NewPriceClient(cfg.PriceAPIURL, cfg.PriceAPIKey, cfg.PriceAPITimeout)

	// Canali di notifica
	channels := []services.Channel{services.NewWebhookChannel(cfg.PriceAPITimeout)}

	var publisher *mq.Publisher
	if cfg.RabbitURL == "" {
		log.Println("RABBIT_URL non impostato, le notifiche email/push/SMS vanno sul log")
		channels = append(channels, services.ConsoleChannel{})
	} else {
		publisher, err = mq.NewPublisher(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			log.Fatalf("Errore nella connessione al broker: %v", err)
		}
		defer publisher.Close()
		channels = append(channels, services.NewBrokerChannel(publisher))
	}

	var bot *telegram.TelegramBot
	if cfg.TelegramBotToken == "" {
		log.Println("TELEGRAM_BOT_TOKEN non impostato, il bot Telegram non sarà avviato")
	} else {
		bot, err = telegram.NewTelegramBot(cfg.TelegramBotToken, store)
		if err != nil {
			log.Printf("⚠️ ERRORE nell'inizializzazione del bot Telegram: %v", err)
		} else {
			channels = append(channels, bot)
		}
	}

	dispatcher := services.NewDispatcher(store, 100, channels...)
	evaluator.SetDispatchChannel(dispatcher.Queue())

	monitor := services.NewPriceMonitor(store, priceClient, evaluator, cfg.CheckInterval)
	monitor.SetWorkers(cfg.CheckWorkers)
	monitor.SetBatchTimeout(cfg.CheckBatchTimeout)
	monitor.SetDrainer(dispatcher)

	// price-pulse check-prices: un solo giro di controllo e uscita
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "check-prices":
			code := runCheckPrices(monitor, dispatcher)
			if publisher != nil {
				publisher.Close()
			}
			os.Exit(code)
		default:
			log.Fatalf("Comando sconosciuto %q (disponibili: check-prices, issue-token)", os.Args[1])
		}
	}

	dispatcher.Start()
	defer dispatcher.Stop()

	monitor.Start()
	defer monitor.Stop()

	if bot != nil {
		bot.Start()
		defer bot.Stop()
	}

	// Inizializza il router Gin
	router := gin.Default()

	// Configurazione CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Imposta le routes
	routes.Setup(router, db, cfg.JWTSecret, monitor)

	srv := &http.Server{Addr: cfg.Addr(), Handler: router}
	go func() {
		fmt.Printf("Server in ascolto su http://localhost%s\n", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Errore nell'avvio del server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Arresto del server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Errore nell'arresto del server: %v", err)
	}
}

// runCheckPrices esegue il job check-prices una volta e restituisce il codice di uscita
func runCheckPrices(monitor *services.PriceMonitor, dispatcher *services.Dispatcher) int {
	dispatcher.Start()
	defer dispatcher.Stop()

	report, err := monitor.RunOnce(context.Background())
	if err != nil {
		log.Printf("check-prices fallito: %v", err)
		return 1
	}
	log.Printf("check-prices completato: controllate=%d alert=%d saltate=%d fallite=%d",
		report.Checked, report.Alerted, report.Skipped, report.Failed)
	return 0
}

// tokenTTL è la durata dei token emessi da issue-token
const tokenTTL = 24 * time.Hour

// runIssueToken firma un token per l'utente indicato e lo scrive su w
func runIssueToken(w io.Writer, secret string, args []string) error {
	if len(args) != 1 {
		return errors.New("uso: price-pulse issue-token <user_id>")
	}
	userID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || userID == 0 {
		return fmt.Errorf("user_id non valido: %q", args[0])
	}
	token, err := middleware.IssueToken(secret, uint(userID), tokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
