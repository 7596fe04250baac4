package provider

import (
	"context"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/lootvault/rewards-engine/config"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/httpclient"
)

// PayoutProvider settles claimed prizes against the external wallet and
// token services. Claim marking is idempotent upstream, so a provider call
// happens at most once per prize.
type PayoutProvider interface {
	PayFungible(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*PayoutReceipt, error)
	TransferUnique(ctx context.Context, userID, mintIdentity, reference string) (*PayoutReceipt, error)
}

// PayoutReceipt is the settlement confirmation returned by the service.
type PayoutReceipt struct {
	TransactionID string `json:"transaction_id" mapstructure:"transaction_id"`
	Status        string `json:"status" mapstructure:"status"`
}

// HTTPPayoutProvider implements PayoutProvider over the settlement service's
// HTTP API.
type HTTPPayoutProvider struct {
	client *httpclient.Client
	logger zerolog.Logger
}

// NewHTTPPayoutProvider creates a payout provider from service config.
func NewHTTPPayoutProvider(cfg config.ServiceConfig, logger zerolog.Logger) *HTTPPayoutProvider {
	return &HTTPPayoutProvider{
		client: httpclient.New(httpclient.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}),
		logger: logger.With().Str("component", "payout_provider").Logger(),
	}
}

// PayFungible requests a token transfer for a claimed fungible prize.
func (p *HTTPPayoutProvider) PayFungible(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*PayoutReceipt, error) {
	body := map[string]interface{}{
		"user_id":   userID,
		"amount":    amount.String(),
		"reference": reference,
	}

	var raw map[string]interface{}
	if err := p.client.PostJSON(ctx, "/payouts/fungible", body, nil, &raw); err != nil {
		p.logger.Error().Err(err).Str("user_id", userID).Str("reference", reference).Msg("fungible payout failed")
		return nil, apperrors.Wrap(err, apperrors.ErrPayoutError, "payout service rejected fungible transfer")
	}

	receipt, err := decodeReceipt(raw)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("user_id", userID).
		Str("amount", amount.String()).
		Str("tx", receipt.TransactionID).
		Msg("fungible payout settled")
	return receipt, nil
}

// TransferUnique requests transfer of a claimed unique item to its winner.
func (p *HTTPPayoutProvider) TransferUnique(ctx context.Context, userID, mintIdentity, reference string) (*PayoutReceipt, error) {
	body := map[string]interface{}{
		"user_id":       userID,
		"mint_identity": mintIdentity,
		"reference":     reference,
	}

	var raw map[string]interface{}
	if err := p.client.PostJSON(ctx, "/payouts/unique", body, nil, &raw); err != nil {
		p.logger.Error().Err(err).Str("user_id", userID).Str("mint", mintIdentity).Msg("unique item transfer failed")
		return nil, apperrors.Wrap(err, apperrors.ErrPayoutError, "payout service rejected item transfer")
	}

	receipt, err := decodeReceipt(raw)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("user_id", userID).
		Str("mint", mintIdentity).
		Str("tx", receipt.TransactionID).
		Msg("unique item transfer settled")
	return receipt, nil
}

func decodeReceipt(raw map[string]interface{}) (*PayoutReceipt, error) {
	var receipt PayoutReceipt
	if err := mapstructure.Decode(raw, &receipt); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrPayoutError, "payout service returned malformed receipt")
	}
	return &receipt, nil
}
