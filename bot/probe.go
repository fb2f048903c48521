package bot

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rmux/axion-bot/telegram"
)

// testConnectivity probes each configured upstream endpoint and reports
// per-endpoint latency and status.
func (d *Dispatcher) testConnectivity(ctx context.Context, chatID int64) error {
	d.logger.Info("connectivity test requested", "chat_id", chatID)

	names := make([]string, 0, len(d.endpoints))
	for name := range d.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	var text strings.Builder
	text.WriteString("🔄 *Testing Upstream Connectivity*\n\n")
	fmt.Fprintf(&text, "🕒 *Timestamp:* %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05"))

	allOK := true
	for _, name := range names {
		status, elapsed, err := d.probe(ctx, d.endpoints[name])
		switch {
		case err != nil:
			allOK = false
			fmt.Fprintf(&text, "❌ *%s:* Error: %v\n", name, err)
		case status == http.StatusOK:
			fmt.Fprintf(&text, "✅ *%s:* Success! Status: %d, Response Time: %dms\n", name, status, elapsed.Milliseconds())
		default:
			allOK = false
			fmt.Fprintf(&text, "❌ *%s:* Failed! Status: %d, Response Time: %dms\n", name, status, elapsed.Milliseconds())
		}
	}

	if allOK {
		text.WriteString("\n✅ *All connections successful!*")
	} else {
		text.WriteString("\n⚠️ *Some connections failed.*")
	}

	return d.send(ctx, chatID, text.String(), telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
}

func (d *Dispatcher) probe(ctx context.Context, url string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, elapsed, nil
}
