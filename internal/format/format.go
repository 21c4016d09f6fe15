// Package format renders backend results into the short texts fed back to
// the LLM as tool messages.
package format

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/tools"
	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/web3"
)

// Func renders one tool result. It must not fail.
type Func func(args map[string]any, result any) string

// Formatter is a table of per-tool renderers with a JSON fallback.
type Formatter struct {
	table map[tools.ID]Func
}

// New returns a formatter covering the whole catalogue.
func New() *Formatter {
	return &Formatter{table: map[tools.ID]Func{
		tools.CreateEvent:              formatCreateEvent,
		tools.GetEvents:                formatEvents,
		tools.GetEventByID:             formatEvent,
		tools.CountEvents:              formatCount,
		tools.CanisterAddress:          formatCanisterAddress,
		tools.AddressBalance:           formatAddressBalance,
		tools.Payment:                  formatPayment,
		tools.GetCurrentFeePercentiles: JSON,
		tools.GetBalance:               formatBitcoinBalance,
		tools.GetUTXOs:                 JSON,
		tools.GetP2PKHAddress:          JSON,
		tools.Send:                     JSON,
	}}
}

// Supports reports whether id has an entry in the table.
func (f *Formatter) Supports(id tools.ID) bool {
	_, ok := f.table[id]
	return ok
}

// Format renders result. Unknown ids fall back to JSON.
func (f *Formatter) Format(id tools.ID, args map[string]any, result any) string {
	if fn, ok := f.table[id]; ok {
		return fn(args, result)
	}
	return JSON(args, result)
}

// JSON serialises the raw result.
func JSON(_ map[string]any, result any) string {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	return string(encoded)
}

func formatEvents(_ map[string]any, result any) string {
	var items []any
	switch v := result.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v["events"].([]any)
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		event, ok := item.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | %s | %s ETH",
			field(event, "name"), field(event, "date"), field(event, "location"), field(event, "price")))
	}
	if len(lines) == 0 {
		return "No events found."
	}
	return strings.Join(lines, "\n")
}

func formatEvent(_ map[string]any, result any) string {
	event, _ := result.(map[string]any)
	if inner, ok := event["event"].(map[string]any); ok {
		event = inner
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\nDate: %s\nLocation: %s\nPrice: %s ETH",
		field(event, "name"), field(event, "date"), field(event, "location"), field(event, "price"))
	if present(event, "capacity") {
		fmt.Fprintf(&b, "\nCapacity: %s", field(event, "capacity"))
	}
	if present(event, "min_age") {
		fmt.Fprintf(&b, "\nMinimum age: %s", field(event, "min_age"))
	}
	return b.String()
}

func formatCreateEvent(args map[string]any, result any) string {
	event, _ := result.(map[string]any)
	name, date := field(event, "name"), field(event, "date")
	if !present(event, "name") {
		name = field(args, "name")
	}
	if !present(event, "date") {
		date = field(args, "date")
	}
	return fmt.Sprintf("✅ Event created: %s on %s", name, date)
}

func formatCount(_ map[string]any, result any) string {
	count := result
	if obj, ok := result.(map[string]any); ok {
		count = obj["count"]
	}
	return fmt.Sprintf("📊 Total events: %s", scalar(count))
}

func formatCanisterAddress(_ map[string]any, result any) string {
	obj, _ := result.(map[string]any)
	return fmt.Sprintf("📦 Canister address: %s", field(obj, "address"))
}

func formatAddressBalance(args map[string]any, result any) string {
	balance := result
	if obj, ok := result.(map[string]any); ok {
		balance = obj["balance"]
	}
	wei := scalar(balance)
	eth, err := web3.WeiStringToEther(wei)
	if err != nil {
		return fmt.Sprintf("💰 Balance of %s: %s wei", field(args, "address"), wei)
	}
	return fmt.Sprintf("💰 Balance of %s: %s ETH", field(args, "address"), eth)
}

func formatPayment(args map[string]any, result any) string {
	obj, _ := result.(map[string]any)
	return fmt.Sprintf("💳 Payment link for event %s: %s", field(args, "eventId"), field(obj, "paymentLink"))
}

func formatBitcoinBalance(args map[string]any, result any) string {
	balance := result
	if obj, ok := result.(map[string]any); ok {
		balance = obj["balance"]
	}
	return fmt.Sprintf("₿ Balance of %s: %s satoshi", field(args, "address"), scalar(balance))
}

func present(obj map[string]any, key string) bool {
	v, ok := obj[key]
	return ok && v != nil
}

func field(obj map[string]any, key string) string {
	return scalar(obj[key])
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case map[string]any, []any:
		return JSON(nil, x)
	default:
		return fmt.Sprint(x)
	}
}
