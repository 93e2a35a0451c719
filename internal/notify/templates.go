package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/inventorynest/shop-orders/internal/orders"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Render builds the message for one notification kind.
func Render(n orders.NotificationPayload) (Message, error) {
	msg := Message{To: n.Recipient}
	switch n.Kind {
	case orders.NotifyOrderPlaced:
		var d orders.OrderPlacedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		msg.Subject = "Order received: " + d.ProductName
		msg.Body = fmt.Sprintf("Thanks for your order.\n\nOrder %s\n%d x %s\nTotal: %s\n",
			d.OrderID, d.Quantity, d.ProductName, Money(d.TotalCents))

	case orders.NotifyOrderBatchPlaced:
		var d orders.BatchPlacedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		var b strings.Builder
		b.WriteString("Thanks for your order.\n\n")
		for _, l := range d.Lines {
			fmt.Fprintf(&b, "%d x %s @ %s = %s (order %s)\n",
				l.Quantity, l.ProductName, Money(l.UnitPriceCents), Money(l.LineTotalCents), l.OrderID)
		}
		fmt.Fprintf(&b, "\nTotal: %s\n", Money(d.TotalCents))
		msg.Subject = fmt.Sprintf("Order confirmation (%d items)", len(d.Lines))
		msg.Body = b.String()

	case orders.NotifyOrderStatusChanged:
		var d orders.StatusChangedData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		msg.Subject = fmt.Sprintf("Your %s order is %s", d.ProductName, humanStatus(d.To))
		msg.Body = fmt.Sprintf("Order %s moved from %s to %s.\n", d.OrderID, humanStatus(d.From), humanStatus(d.To))

	case orders.NotifyOrderCancelled:
		var d orders.OrderCancelledData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		msg.Subject = "Order cancelled: " + d.ProductName
		msg.Body = fmt.Sprintf("Order %s for %d x %s has been cancelled.\n", d.OrderID, d.Quantity, d.ProductName)

	case orders.NotifyOrderCancelledOwner:
		var d orders.OrderCancelledData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		by := d.CancelledBy
		if by == "" {
			by = "the customer"
		}
		msg.Subject = "Order cancelled for " + d.ProductName
		msg.Body = fmt.Sprintf("Order %s (%d x %s) was cancelled by %s. The stock is available again.\n",
			d.OrderID, d.Quantity, d.ProductName, by)

	case orders.NotifyOrderDeleted:
		var d orders.OrderCancelledData
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return Message{}, fmt.Errorf("decode %s: %w", n.Kind, err)
		}
		msg.Subject = "Order removed: " + d.ProductName
		msg.Body = fmt.Sprintf("Order %s for %d x %s was removed by the shop.\n", d.OrderID, d.Quantity, d.ProductName)

	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
	return msg, nil
}

// Money formats integer cents as a fixed two-decimal amount.
func Money(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2)
}

func humanStatus(s orders.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}
