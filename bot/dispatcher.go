// Package bot turns inbound Telegram updates into cache lookups and
// rendered replies.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/cache"
	"github.com/rmux/axion-bot/match"
	"github.com/rmux/axion-bot/telegram"
	"github.com/rmux/axion-bot/telemetry"
)

// Sender is the outbound chat surface the dispatcher needs.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, opts telegram.SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

const (
	startText = "Welcome to Axion Build Checker!\n" +
		"Use /axion <codename> to check latest builds\n" +
		"Example: /axion pipa\n\n" +
		"Use /devices to see all officially supported devices"

	helpText = "📱 *Axion Build Checker Commands:*\n\n" +
		"/start - Start the bot\n" +
		"/axion <codename> - Check builds for a specific device\n" +
		"/devices - List all officially supported devices\n" +
		"/help - Show this help message"

	tryAgainText = "Failed to fetch build information. Please try again later."
)

// Dispatcher routes inbound updates to command handlers. Every handler
// absorbs its own failures so one failing command never affects another
// update.
type Dispatcher struct {
	cache         *cache.Cache
	sender        Sender
	logs          *LogBuffer
	logger        *slog.Logger
	adminChatID   int64
	endpoints     map[string]string
	descriptorURL func(codename string, variant axionbot.Variant) string
	httpClient    *http.Client
	started       time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithLogBuffer sets the buffer behind the !logs command.
func WithLogBuffer(buf *LogBuffer) DispatcherOption {
	return func(d *Dispatcher) {
		d.logs = buf
	}
}

// WithAdminChatID sets the chat allowed to run administrative commands.
// Zero disables them.
func WithAdminChatID(chatID int64) DispatcherOption {
	return func(d *Dispatcher) {
		d.adminChatID = chatID
	}
}

// WithEndpoints sets the named upstream URLs probed by the connectivity
// test.
func WithEndpoints(endpoints map[string]string) DispatcherOption {
	return func(d *Dispatcher) {
		d.endpoints = endpoints
	}
}

// WithDescriptorURL sets the function that resolves the OTA descriptor
// location for a (codename, variant) pair, shown by the build check.
func WithDescriptorURL(fn func(codename string, variant axionbot.Variant) string) DispatcherOption {
	return func(d *Dispatcher) {
		d.descriptorURL = fn
	}
}

// WithProbeClient sets the HTTP client used by the connectivity test.
func WithProbeClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		d.httpClient = client
	}
}

// NewDispatcher creates a dispatcher over the given cache and sender.
func NewDispatcher(c *cache.Cache, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cache:      c,
		sender:     sender,
		logs:       NewLogBuffer(DefaultLogCapacity),
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleUpdate dispatches one inbound update. Unknown update kinds are
// ignored.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update *tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		d.handleMessage(ctx, update.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	base, _, _ := strings.Cut(command, "@")
	chatID := m.Chat.ID
	admin := d.adminChatID != 0 && chatID == d.adminChatID

	d.logger.Info("received message", "chat_id", chatID, "command", base)

	var err error
	switch base {
	case "/start":
		telemetry.RecordCommand("start")
		err = d.send(ctx, chatID, startText, telegram.SendOptions{})
	case "/help":
		telemetry.RecordCommand("help")
		err = d.send(ctx, chatID, helpText, telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
	case "/devices":
		telemetry.RecordCommand("devices")
		err = d.handleDevices(ctx, chatID)
	case "/axion":
		telemetry.RecordCommand("axion")
		arg := ""
		if len(fields) > 1 {
			arg = strings.ToLower(fields[1])
		}
		err = d.handleAxion(ctx, chatID, arg)
	case "/refresh":
		if !admin {
			return
		}
		telemetry.RecordCommand("refresh")
		d.cache.Clear()
		err = d.send(ctx, chatID, "Cache refreshed successfully!", telegram.SendOptions{})
	case "/debug":
		if !admin || len(fields) < 2 {
			return
		}
		telemetry.RecordCommand("debug")
		variant := axionbot.VariantVanilla
		if len(fields) > 2 {
			if v, ok := axionbot.ParseVariant(fields[2]); ok {
				variant = v
			}
		}
		err = d.handleDebug(ctx, chatID, strings.ToLower(fields[1]), variant)
	case "/checkbuild":
		if !admin || len(fields) < 2 {
			return
		}
		telemetry.RecordCommand("checkbuild")
		err = d.handleCheckBuild(ctx, chatID, strings.ToLower(fields[1]))
	case "/testcon":
		if !admin {
			return
		}
		telemetry.RecordCommand("testcon")
		err = d.testConnectivity(ctx, chatID)
	case "!gh":
		telemetry.RecordCommand("gh")
		err = d.testConnectivity(ctx, chatID)
	case "!info":
		telemetry.RecordCommand("info")
		err = d.sendInfo(ctx, chatID)
	case "!logs":
		telemetry.RecordCommand("logs")
		err = d.sendLogs(ctx, chatID)
	case "!stats":
		telemetry.RecordCommand("stats")
		err = d.sendStats(ctx, chatID)
	case "!status":
		telemetry.RecordCommand("status")
		err = d.sendStatus(ctx, chatID)
	default:
		return
	}
	if err != nil {
		d.logger.Error("command failed", "command", base, "chat_id", chatID, "error", err)
		d.reportError(ctx, base, err)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	// Acknowledge receipt regardless of outcome so the client stops its
	// spinner.
	if err := d.sender.AnswerCallback(ctx, q.ID); err != nil {
		d.logger.Warn("answering callback failed", "error", err)
	}
	if q.Message == nil {
		return
	}

	action, codename, ok := strings.Cut(q.Data, "_")
	if !ok {
		return
	}
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID

	d.logger.Info("callback query", "action", action, "codename", codename)

	var err error
	if action == "back" {
		err = d.editDeviceSummary(ctx, chatID, messageID, codename)
	} else {
		err = d.editBuildDetail(ctx, chatID, messageID, action, codename)
	}
	if err != nil {
		d.logger.Error("callback failed", "action", action, "codename", codename, "error", err)
		d.reportError(ctx, "callback "+action, err)
	}
}

func (d *Dispatcher) handleAxion(ctx context.Context, chatID int64, codename string) error {
	if codename == "" {
		return d.send(ctx, chatID, "Please provide a device codename!\nExample: /axion pipa", telegram.SendOptions{})
	}

	res := match.Resolve(ctx, d.cache, codename)
	if !res.Found {
		snap := d.cache.Devices(ctx, false)
		if len(snap.Devices) == 0 {
			return d.send(ctx, chatID, tryAgainText, telegram.SendOptions{})
		}
		return d.send(ctx, chatID, renderSuggestions(codename, res.Suggestions), telegram.SendOptions{})
	}

	vanilla := d.cache.Build(ctx, res.Codename, axionbot.VariantVanilla, false)
	gms := d.cache.Build(ctx, res.Codename, axionbot.VariantGMS, false)
	if vanilla == nil && gms == nil {
		return d.send(ctx, chatID, fmt.Sprintf("No builds found for %s!", res.Codename), telegram.SendOptions{})
	}

	text, markup := renderDeviceSummary(res.Device, vanilla, gms)
	return d.send(ctx, chatID, text, telegram.SendOptions{
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
}

func (d *Dispatcher) handleDevices(ctx context.Context, chatID int64) error {
	snap := d.cache.Devices(ctx, false)
	if len(snap.Devices) == 0 {
		return d.send(ctx, chatID, "No devices found. Please try again later.", telegram.SendOptions{})
	}
	return d.send(ctx, chatID, renderDeviceList(snap), telegram.SendOptions{
		ParseMode:             telegram.ParseModeMarkdown,
		DisableWebPagePreview: true,
	})
}

func (d *Dispatcher) editDeviceSummary(ctx context.Context, chatID int64, messageID int, codename string) error {
	device := d.deviceInfo(ctx, codename)
	vanilla := d.cache.Build(ctx, codename, axionbot.VariantVanilla, false)
	gms := d.cache.Build(ctx, codename, axionbot.VariantGMS, false)

	text, markup := renderDeviceSummary(device, vanilla, gms)
	return d.sender.EditMessage(ctx, chatID, messageID, text, telegram.SendOptions{
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
}

func (d *Dispatcher) editBuildDetail(ctx context.Context, chatID int64, messageID int, action, codename string) error {
	// Any action other than "back" carries a variant name.
	variant := axionbot.Variant(strings.ToUpper(action))
	build := d.cache.Build(ctx, codename, variant, false)
	if build == nil {
		return d.sender.EditMessage(ctx, chatID, messageID,
			fmt.Sprintf("No %s build found for %s!", variant, codename), telegram.SendOptions{})
	}

	text, markup := renderBuildDetail(d.deviceInfo(ctx, codename), build)
	return d.sender.EditMessage(ctx, chatID, messageID, text, telegram.SendOptions{
		ParseMode:   telegram.ParseModeMarkdown,
		ReplyMarkup: markup,
	})
}

// deviceInfo looks up a device, falling back to a synthesized entry when
// the codename is no longer in the snapshot (e.g. a transient entry aged
// out between the summary and a button press).
func (d *Dispatcher) deviceInfo(ctx context.Context, codename string) axionbot.DeviceInfo {
	snap := d.cache.Devices(ctx, false)
	if device, ok := snap.Devices[codename]; ok {
		return device
	}
	name := codename
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return axionbot.DeviceInfo{Codename: codename, Name: name}
}

func (d *Dispatcher) handleDebug(ctx context.Context, chatID int64, codename string, variant axionbot.Variant) error {
	d.cache.Clear()

	build := d.cache.Build(ctx, codename, variant, true)
	if build == nil {
		return d.send(ctx, chatID, fmt.Sprintf("No %s build found for %s!", variant, codename), telegram.SendOptions{})
	}

	dump, err := json.MarshalIndent(build, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling debug dump: %w", err)
	}
	text := fmt.Sprintf("DEBUG INFO for %s (%s):\n\n%s", codename, variant, dump)
	return d.send(ctx, chatID, text, telegram.SendOptions{})
}

func (d *Dispatcher) handleCheckBuild(ctx context.Context, chatID int64, codename string) error {
	d.cache.Clear()
	snap := d.cache.Devices(ctx, true)
	device, listed := snap.Devices[codename]

	var text strings.Builder
	fmt.Fprintf(&text, "Debug check for %s:\n\n", codename)
	fmt.Fprintf(&text, "✓ Device in official list: %s\n", yesNo(listed))
	if listed {
		fmt.Fprintf(&text, "- Device name: %s\n", device.Name)
		fmt.Fprintf(&text, "- Maintainer: %s\n\n", maintainerLine(device))
	}

	for _, variant := range axionbot.Variants() {
		if d.descriptorURL != nil {
			fmt.Fprintf(&text, "✓ Checking for %s build: %s\n", variant.Title(), d.descriptorURL(codename, variant))
		} else {
			fmt.Fprintf(&text, "✓ Checking for %s build:\n", variant.Title())
		}
		if build := d.cache.Build(ctx, codename, variant, true); build != nil {
			fmt.Fprintf(&text, "- Found! Version: %s\n", build.Version)
			fmt.Fprintf(&text, "- Filename: %s\n", build.Filename)
			fmt.Fprintf(&text, "- Size: %s\n", build.Size)
		} else {
			fmt.Fprintf(&text, "- No %s build found\n", variant.Title())
		}
		text.WriteString("\n")
	}

	return d.send(ctx, chatID, text.String(), telegram.SendOptions{})
}

func (d *Dispatcher) sendInfo(ctx context.Context, chatID int64) error {
	d.cache.Devices(ctx, false)
	stats := d.cache.Stats()

	var text strings.Builder
	text.WriteString("📊 *Bot Info*\n\n")
	fmt.Fprintf(&text, "🕒 *Timestamp:* %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&text, "📱 *Devices fetched:* %d\n", stats.Devices)
	fmt.Fprintf(&text, "👤 *Maintainers fetched:* %d\n", stats.Maintainers)
	fmt.Fprintf(&text, "💬 *Support groups fetched:* %d\n", stats.SupportGroups)
	text.WriteString("📦 *OTA Builds:*\n")
	fmt.Fprintf(&text, "   • *Vanilla:* %d builds cached\n", stats.VanillaBuilds)
	fmt.Fprintf(&text, "   • *GMS:* %d builds cached\n\n", stats.GMSBuilds)
	fmt.Fprintf(&text, "🕒 *Cache last refreshed:* %s\n\n", formatRefresh(stats.LastRefresh))
	text.WriteString("Use /devices to see the full list of supported devices.")

	return d.send(ctx, chatID, text.String(), telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
}

func (d *Dispatcher) sendStatus(ctx context.Context, chatID int64) error {
	d.cache.Devices(ctx, false)
	stats := d.cache.Stats()

	var text strings.Builder
	text.WriteString("✅ *Bot Status*\n\n")
	fmt.Fprintf(&text, "📱 *Devices fetched:* %d\n", stats.Devices)
	text.WriteString("📦 *OTA Builds:*\n")
	fmt.Fprintf(&text, "   • *Vanilla:* %d builds cached\n", stats.VanillaBuilds)
	fmt.Fprintf(&text, "   • *GMS:* %d builds cached\n", stats.GMSBuilds)
	fmt.Fprintf(&text, "🕒 *Cache last refreshed:* %s\n\n", formatRefresh(stats.LastRefresh))
	text.WriteString("Use !info for more details.")

	return d.send(ctx, chatID, text.String(), telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
}

func (d *Dispatcher) sendStats(ctx context.Context, chatID int64) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var text strings.Builder
	text.WriteString("📊 *Bot Stats*\n\n")
	fmt.Fprintf(&text, "🕒 *Uptime:* %d minutes\n", int(time.Since(d.started).Minutes()))
	text.WriteString("💾 *Memory Usage:*\n")
	fmt.Fprintf(&text, "   • Alloc: %s\n", axionbot.HumanSize(int64(mem.Alloc)))
	fmt.Fprintf(&text, "   • Heap: %s\n", axionbot.HumanSize(int64(mem.HeapAlloc)))
	fmt.Fprintf(&text, "   • Sys: %s\n\n", axionbot.HumanSize(int64(mem.Sys)))
	text.WriteString("Use !info for more details.")

	return d.send(ctx, chatID, text.String(), telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
}

var logTimestampRe = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\]`)

func (d *Dispatcher) sendLogs(ctx context.Context, chatID int64) error {
	lines := d.logs.Recent(10)

	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = logTimestampRe.ReplaceAllString(line, "")
		// Strip style characters entirely rather than escaping them.
		line = strings.NewReplacer("*", "", "_", "", "`", "").Replace(line)
		cleaned = append(cleaned, "○ "+strings.TrimSpace(line))
	}

	text := "📝 Recent Logs\n━━━━━━━━━━━━━━━━━\n\n" + strings.Join(cleaned, "\n\n")
	// Sent unstyled so raw log content never trips the markup parser.
	return d.send(ctx, chatID, text, telegram.SendOptions{DisableWebPagePreview: true})
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) error {
	return d.sender.SendMessage(ctx, chatID, text, opts)
}

// reportError pushes a failure notice to the admin chat. Best effort: when
// no admin chat is configured or the report send itself fails, the log
// line is the only trace.
func (d *Dispatcher) reportError(ctx context.Context, scope string, err error) {
	if d.adminChatID == 0 {
		return
	}
	text := fmt.Sprintf("⚠️ *Bot Error Report*\n\n*Context:* %s\n*Error:* %v", scope, err)
	sendErr := d.sender.SendMessage(ctx, d.adminChatID, text, telegram.SendOptions{
		ParseMode:             telegram.ParseModeMarkdown,
		DisableWebPagePreview: true,
	})
	if sendErr != nil {
		d.logger.Warn("reporting error to admin failed", "error", sendErr)
	}
}

func formatRefresh(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
