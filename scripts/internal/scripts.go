package internal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gepvi/gepvi-users/internal/config"
	"github.com/gepvi/gepvi-users/internal/domain/webhookrecord"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gepvi/gepvi-users/internal/repository"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/samber/lo"
)

// GenerateAPIKey prints a random 256-bit key in hex
func GenerateAPIKey() error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}

	fmt.Printf("\nNew API Key Generated:\n")
	fmt.Printf("%s\n", hex.EncodeToString(key))
	fmt.Printf("\nSet it as auth.api_key in config.yaml or GEPVI_AUTH_API_KEY in the environment,\n")
	fmt.Printf("and give the same value to the bot.\n")
	return nil
}

type deps struct {
	cfg    *config.Configuration
	logger *logger.Logger
	db     *postgres.DB
}

func connect() (*deps, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, logger: log, db: db}, nil
}

// GrantSubscription extends USER_ID's subscription by GRANT_DAYS, stacking
// on top of any time left
func GrantSubscription() error {
	userID := os.Getenv("USER_ID")
	if !types.IsValidUserID(userID) {
		return ierr.NewError("USER_ID must be a UUID").Mark(ierr.ErrValidation)
	}

	days, err := strconv.Atoi(os.Getenv("GRANT_DAYS"))
	if err != nil || days <= 0 {
		return ierr.NewError("GRANT_DAYS must be a positive number").Mark(ierr.ErrValidation)
	}

	d, err := connect()
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewEntitlementRepository(d.db, d.logger)
	e, err := repo.ExtendSubscription(ctx, userID, time.Duration(days)*24*time.Hour, time.Now().UTC())
	if err != nil {
		return err
	}

	d.logger.Infow("granted subscription",
		"user_id", e.UserID,
		"days", days,
		"subscription_expires_at", e.SubscriptionExpiresAt,
	)
	fmt.Printf("User %s is subscribed until %s\n", e.UserID, e.SubscriptionExpiresAt.Format(time.RFC3339))
	return nil
}

// ListWebhooks prints audited deliveries for INTENT_ID, or the latest LIMIT
// deliveries when no intent is given
func ListWebhooks() error {
	limit := 20
	if raw := os.Getenv("LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return ierr.NewError("LIMIT must be a positive number").Mark(ierr.ErrValidation)
		}
		limit = n
	}

	d, err := connect()
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewWebhookRecordRepository(d.db, d.logger)
	var records []*webhookrecord.Record
	if intentID := os.Getenv("INTENT_ID"); intentID != "" {
		records, err = repo.ListByIntent(ctx, intentID)
	} else {
		records, err = repo.ListRecent(ctx, limit)
	}
	if err != nil {
		return err
	}

	for _, r := range records {
		fmt.Printf("%6d  %s  %-26s %3d  %-28s intent=%s payment=%s\n",
			r.ID,
			r.ReceivedAt.Format(time.RFC3339),
			r.Outcome,
			r.ResponseCode,
			r.EventType,
			lo.FromPtr(r.MatchedIntentID),
			lo.FromPtr(r.GatewayPaymentID),
		)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}
