package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/integration/yookassa"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/shopspring/decimal"
)

// Parse turns a raw notification body into a typed event. Anything that is
// not a well-formed notification fails with ErrMalformedWebhook.
func Parse(payload []byte) (Event, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, malformed(err.Error())
	}

	if n.Type != NotificationType {
		return nil, malformed(fmt.Sprintf("unexpected type %q", n.Type))
	}
	if strings.TrimSpace(n.Event) == "" {
		return nil, malformed("missing event")
	}
	if strings.TrimSpace(n.Object.ID) == "" {
		return nil, malformed("missing object id")
	}

	switch types.WebhookEventType(n.Event) {
	case types.WebhookEventPaymentSucceeded:
		amount, err := parseAmount(n.Object.Amount)
		if err != nil {
			return nil, err
		}
		return PaymentSucceeded{
			Correlation: correlationOf(n.Object),
			Amount:      amount,
			Currency:    n.Object.Amount.Currency,
		}, nil

	case types.WebhookEventPaymentCanceled:
		e := PaymentCanceled{Correlation: correlationOf(n.Object)}
		if d := n.Object.CancellationDetails; d != nil {
			e.Party = d.Party
			e.Reason = d.Reason
		}
		return e, nil

	default:
		return Ignored{Event: n.Event, ObjectID: n.Object.ID}, nil
	}
}

func correlationOf(p yookassa.Payment) Correlation {
	return Correlation{
		GatewayPaymentID: p.ID,
		IntentID:         metadataString(p.Metadata, yookassa.MetadataIntentID),
	}
}

func parseAmount(a yookassa.Amount) (decimal.Decimal, error) {
	if a.Value == "" {
		return decimal.Zero, nil
	}
	d, err := a.Decimal()
	if err != nil {
		return decimal.Zero, malformed(fmt.Sprintf("invalid amount %q", a.Value))
	}
	return d, nil
}

// metadataString reads a metadata value. The gateway echoes metadata back as
// strings but older payments carried numbers.
func metadataString(metadata map[string]any, key string) string {
	switch v := metadata[key].(type) {
	case string:
		return v
	case float64:
		return decimal.NewFromFloat(v).String()
	default:
		return ""
	}
}

func malformed(reason string) error {
	return ierr.NewError("malformed webhook: " + reason).
		WithHint("Malformed webhook payload").
		Mark(ierr.ErrMalformedWebhook)
}
