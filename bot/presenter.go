package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	axionbot "github.com/rmux/axion-bot"
	"github.com/rmux/axion-bot/registry"
)

// maintainerLine substitutes a placeholder when the registry carries no
// maintainer for a device.
func maintainerLine(d axionbot.DeviceInfo) string {
	if d.Maintainer == "" {
		return "Not specified"
	}
	return d.Maintainer
}

// renderDeviceSummary builds the device overview message: header,
// maintainer, one bullet and one button per available variant.
func renderDeviceSummary(d axionbot.DeviceInfo, vanilla, gms *axionbot.BuildInfo) (string, *tgbotapi.InlineKeyboardMarkup) {
	var text strings.Builder
	fmt.Fprintf(&text, "📱 *%s* (%s)\n", d.Name, d.Codename)
	fmt.Fprintf(&text, "👤 Maintainer: %s\n\n", maintainerLine(d))
	text.WriteString("*Available builds:*\n")

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, build := range []*axionbot.BuildInfo{vanilla, gms} {
		if build == nil {
			continue
		}
		fmt.Fprintf(&text, "\n• %s: %s", build.Variant.Title(), build.Version)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				build.Variant.Title(),
				build.Variant.CallbackName()+"_"+d.Codename,
			),
		))
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return text.String(), &markup
}

// renderBuildDetail builds the per-variant detail message with support
// group, download and back buttons.
func renderBuildDetail(d axionbot.DeviceInfo, build *axionbot.BuildInfo) (string, *tgbotapi.InlineKeyboardMarkup) {
	var text strings.Builder
	fmt.Fprintf(&text, "⚡ *%s Build*\n", build.Variant)
	fmt.Fprintf(&text, "📱 Device: %s (%s)\n", d.Name, d.Codename)
	fmt.Fprintf(&text, "👤 Maintainer: %s\n\n", maintainerLine(d))
	fmt.Fprintf(&text, "🔖 Version: %s\n", build.Version)
	fmt.Fprintf(&text, "📅 Date: %s\n", build.Date)
	fmt.Fprintf(&text, "📦 Size: %s", build.Size)
	if build.MD5 != "" {
		fmt.Fprintf(&text, "\n🔐 MD5: `%s`", build.MD5)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if d.SupportGroup != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("💬 Support Group", d.SupportGroup),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("⬇️ Download", build.URL),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Back", "back_"+d.Codename),
	))

	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return text.String(), &markup
}

// renderDeviceList builds the full device listing grouped by manufacturer
// (the first whitespace-delimited token of the display name). Devices are
// sorted by display name; manufacturers appear in first-seen order of that
// sorted walk.
func renderDeviceList(snap *registry.Snapshot) string {
	devices := make([]axionbot.DeviceInfo, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].Codename < devices[j].Codename
	})

	var order []string
	groups := map[string][]axionbot.DeviceInfo{}
	for _, d := range devices {
		manufacturer := d.Name
		if idx := strings.IndexAny(manufacturer, " \t"); idx > 0 {
			manufacturer = manufacturer[:idx]
		}
		if _, ok := groups[manufacturer]; !ok {
			order = append(order, manufacturer)
		}
		groups[manufacturer] = append(groups[manufacturer], d)
	}

	var text strings.Builder
	text.WriteString("📱 *Officially Supported Devices*\n\n")
	for _, manufacturer := range order {
		fmt.Fprintf(&text, "*%s*\n", manufacturer)
		for _, d := range groups[manufacturer] {
			fmt.Fprintf(&text, "• %s (`%s`)\n", d.Name, d.Codename)
		}
		text.WriteString("\n")
	}
	text.WriteString("Use /axion <codename> to check builds for a specific device")
	return text.String()
}

// renderSuggestions formats the not-found reply with up to three similar
// devices.
func renderSuggestions(input string, suggestions []axionbot.DeviceInfo) string {
	var text strings.Builder
	fmt.Fprintf(&text, "Device %q not found in official devices list and no builds exist.", input)
	if len(suggestions) > 0 {
		text.WriteString("\n\nDid you mean:")
		for _, d := range suggestions {
			fmt.Fprintf(&text, "\n• %s (%s)", d.Codename, d.Name)
		}
	}
	return text.String()
}
