package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"price-pulse/models"
	"price-pulse/services"
)

const commandTimeout = 10 * time.Second

// TelegramBot gestisce i comandi della chat e consegna le notifiche di calo prezzo
type TelegramBot struct {
	bot   *tgbotapi.BotAPI
	store *services.GormStore
}

// NewTelegramBot crea una nuova istanza del bot Telegram
func NewTelegramBot(token string, store *services.GormStore) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("errore nell'inizializzazione del bot: %w", err)
	}

	log.Printf("[Telegram] Bot autorizzato con account %s", bot.Self.UserName)

	return &TelegramBot{bot: bot, store: store}, nil
}

// Start avvia la ricezione dei messaggi in background
func (t *TelegramBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}
			go t.handleMessage(update.Message)
		}
		log.Println("[Telegram] Loop di aggiornamenti interrotto")
	}()

	log.Println("[Telegram] Bot avviato e in ascolto di messaggi")
}

// Stop interrompe la ricezione dei messaggi
func (t *TelegramBot) Stop() {
	t.bot.StopReceivingUpdates()
}

// handleMessage gestisce i messaggi in arrivo
func (t *TelegramBot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		t.sendMessage(message.Chat.ID, "Invia un comando, ad esempio /help")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch message.Command() {
	case "start", "help":
		t.sendMessage(message.Chat.ID, helpText)
	case "id":
		t.sendMessage(message.Chat.ID, fmt.Sprintf("Il tuo chat ID è %d.\nInseriscilo come telegram_chat_id nelle impostazioni degli alert.", message.Chat.ID))
	case "alerts":
		t.handleAlerts(ctx, message)
	case "dismiss":
		t.handleDismiss(ctx, message)
	default:
		t.sendMessage(message.Chat.ID, "Comando non riconosciuto. Usa /help per vedere i comandi disponibili.")
	}
}

const helpText = `
Comandi disponibili:
/id - Mostra il chat ID da collegare nelle impostazioni
/alerts - Mostra gli alert di prezzo aperti
/dismiss <id> - Ignora un alert (es: /dismiss 12)
/help - Mostra questo messaggio
`

// handleAlerts gestisce il comando /alerts
func (t *TelegramBot) handleAlerts(ctx context.Context, message *tgbotapi.Message) {
	userID, ok := t.linkedUser(ctx, message.Chat.ID)
	if !ok {
		return
	}

	alerts, err := t.store.ListAlerts(ctx, userID, models.AlertNew)
	if err != nil {
		log.Printf("[Telegram] Errore nel recupero degli alert per utente %d: %v", userID, err)
		t.sendMessage(message.Chat.ID, "Errore nel recupero degli alert, riprova più tardi.")
		return
	}
	t.sendMessage(message.Chat.ID, formatAlerts(alerts))
}

// handleDismiss gestisce il comando /dismiss
func (t *TelegramBot) handleDismiss(ctx context.Context, message *tgbotapi.Message) {
	id, err := parseAlertID(message.CommandArguments())
	if err != nil {
		t.sendMessage(message.Chat.ID, "Specifica l'ID dell'alert. Esempio: /dismiss 12")
		return
	}
	userID, ok := t.linkedUser(ctx, message.Chat.ID)
	if !ok {
		return
	}

	_, err = t.store.TransitionAlert(ctx, userID, id, models.AlertDismissed)
	switch {
	case errors.Is(err, services.ErrNotFound):
		t.sendMessage(message.Chat.ID, "Alert non trovato o non hai i permessi per modificarlo.")
	case errors.Is(err, models.ErrInvalidTransition):
		t.sendMessage(message.Chat.ID, fmt.Sprintf("L'alert #%d è già stato gestito.", id))
	case err != nil:
		log.Printf("[Telegram] Errore nel dismiss dell'alert %d: %v", id, err)
		t.sendMessage(message.Chat.ID, "Errore nell'aggiornamento dell'alert, riprova più tardi.")
	default:
		t.sendMessage(message.Chat.ID, fmt.Sprintf("🗑️ Alert #%d ignorato.", id))
	}
}

// linkedUser risolve l'utente collegato alla chat, rispondendo se la chat non è collegata
func (t *TelegramBot) linkedUser(ctx context.Context, chatID int64) (uint, bool) {
	userID, err := t.store.UserForChat(ctx, chatID)
	if errors.Is(err, services.ErrNotFound) {
		t.sendMessage(chatID, "Questa chat non è collegata a nessun account. Usa /id e inserisci il valore nelle impostazioni.")
		return 0, false
	}
	if err != nil {
		log.Printf("[Telegram] Errore nella ricerca dell'utente per chat %d: %v", chatID, err)
		t.sendMessage(chatID, "Errore interno, riprova più tardi.")
		return 0, false
	}
	return userID, true
}

// sendMessage invia un messaggio a una chat
func (t *TelegramBot) sendMessage(chatID int64, text string) {
	if err := t.send(chatID, text); err != nil {
		log.Printf("[Telegram] Errore nell'invio del messaggio: %v", err)
	}
}

func (t *TelegramBot) send(chatID int64, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// Name, Enabled e Send rendono il bot un canale del dispatcher

func (t *TelegramBot) Name() string { return "telegram" }

func (t *TelegramBot) Enabled(rule *models.AlertRule) bool {
	return rule.NotifyTelegram && rule.TelegramChatID != 0
}

func (t *TelegramBot) Send(ctx context.Context, rule *models.AlertRule, msg services.Message) error {
	log.Printf("[Telegram] Invio notifica alert %d alla chat %d", msg.AlertID, rule.TelegramChatID)
	return t.send(rule.TelegramChatID, msg.Text)
}

func parseAlertID(args string) (uint, error) {
	fields := strings.Fields(args)
	if len(fields) < 1 {
		return 0, errors.New("id mancante")
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("id non valido: %q", fields[0])
	}
	return uint(id), nil
}

func formatAlerts(alerts []models.PriceAlert) string {
	if len(alerts) == 0 {
		return "Non hai alert aperti."
	}

	var response strings.Builder
	response.WriteString("📉 I tuoi alert aperti:\n\n")
	for _, a := range alerts {
		fmt.Fprintf(&response, "#%d | %s\nPrenotazione: %d\nPrezzo: %s → %s %s\nRisparmio: %s %s (%s%%)\nRilevato il: %s (UTC)\n\n",
			a.ID, a.Severity, a.BookingID,
			a.PreviousPrice.StringFixed(2), a.ObservedPrice.StringFixed(2), a.Currency,
			a.DeltaAmount.StringFixed(2), a.Currency, a.DeltaPercent.StringFixed(2),
			a.TriggeredAt.UTC().Format("02/01/2006 15:04"))
	}
	response.WriteString("Usa /dismiss <id> per ignorare un alert.")
	return response.String()
}
