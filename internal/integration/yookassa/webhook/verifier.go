package webhook

import (
	"net"
	"net/http"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	svix "github.com/svix/svix-webhooks/go"
)

// Verifier checks that a delivery really comes from the gateway. Both
// checks are optional and enabled by configuration: a source address
// allowlist and a Standard Webhooks signature.
type Verifier struct {
	allowed []*net.IPNet
	signer  *svix.Webhook
	logger  *logger.Logger
}

// NewVerifier creates a verifier from the webhook configuration
func NewVerifier(cfg *config.Configuration, logger *logger.Logger) (*Verifier, error) {
	v := &Verifier{logger: logger}

	for _, cidr := range cfg.Webhook.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid webhook CIDR %q", cidr).
				Mark(ierr.ErrValidation)
		}
		v.allowed = append(v.allowed, network)
	}

	if cfg.Webhook.SigningSecret != "" {
		wh, err := svix.NewWebhook(cfg.Webhook.SigningSecret)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Invalid webhook signing secret").
				Mark(ierr.ErrValidation)
		}
		v.signer = wh
	}

	return v, nil
}

// Verify returns ErrInvalidSignature when the delivery fails a check
func (v *Verifier) Verify(remoteIP string, payload []byte, headers http.Header) error {
	if len(v.allowed) > 0 && !v.ipAllowed(remoteIP) {
		v.logger.Warnw("webhook from unexpected address", "remote_ip", remoteIP)
		return ierr.NewError("webhook source address not allowed").
			WithHint("Webhook sender is not allowed").
			WithReportableDetails(map[string]any{"remote_ip": remoteIP}).
			Mark(ierr.ErrInvalidSignature)
	}

	if v.signer != nil {
		if err := v.signer.Verify(payload, headers); err != nil {
			v.logger.Warnw("webhook signature verification failed", "error", err)
			return ierr.WithError(err).
				WithHint("Invalid webhook signature").
				Mark(ierr.ErrInvalidSignature)
		}
	}

	return nil
}

func (v *Verifier) ipAllowed(remoteIP string) bool {
	ip := net.ParseIP(remoteIP)
	if ip == nil {
		return false
	}
	for _, network := range v.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
