package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/workwork-1/projectbotsalon/pkg/metrics"
	"github.com/workwork-1/projectbotsalon/pkg/repository/model"
	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

type registration struct {
	Name  string `validate:"required,max=128"`
	Phone string `validate:"required,max=32"`
}

// NormalizePhone returns the E.164 form of a valid number and the bare digits otherwise.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if num, err := phonenumbers.Parse(raw, region); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return phonenumbers.NormalizeDigitsOnly(raw)
}

// RegisterClient returns the id of the client owning phone or externalID, creating the
// client if neither is known. An existing client's name is never updated.
func (e *Engine) RegisterClient(ctx context.Context, name, phone string, externalID *int64) (int64, error) {
	reg := registration{Name: strings.TrimSpace(name), Phone: NormalizePhone(phone, e.opts.PhoneRegion)}
	if err := e.validate.Struct(reg); err != nil {
		return 0, errs.Validation("invalid client registration").Wrap(err)
	}

	existing, err := e.findClient(ctx, reg.Phone, externalID)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		metrics.IncClientRegistered("existing")
		return existing.ID, nil
	}

	id, err := e.repo.InsertClient(ctx, model.Client{Name: reg.Name, Phone: reg.Phone, ExternalID: externalID})
	if err == nil {
		metrics.IncClientRegistered("created")
		e.logger.Info().Int64("client_id", id).Msg("client registered")
		return id, nil
	}
	if !errors.Is(err, errs.ErrDuplicate) {
		return 0, err
	}

	// Lost an insert race: the winner's row is committed now.
	existing, lookupErr := e.findClient(ctx, reg.Phone, externalID)
	if lookupErr != nil {
		return 0, lookupErr
	}
	if existing == nil {
		return 0, errs.Store("resolve client after duplicate insert", err)
	}
	metrics.IncClientRegistered("existing")
	return existing.ID, nil
}

// ResolveClient looks a client up by phone, or by externalID when phone is empty.
func (e *Engine) ResolveClient(ctx context.Context, phone string, externalID *int64) (int64, bool, error) {
	var (
		c   *model.Client
		err error
	)
	switch {
	case strings.TrimSpace(phone) != "":
		c, err = e.repo.FindClientByPhone(ctx, NormalizePhone(phone, e.opts.PhoneRegion))
	case externalID != nil:
		c, err = e.repo.FindClientByExternalID(ctx, *externalID)
	default:
		return 0, false, nil
	}
	if err != nil || c == nil {
		return 0, false, err
	}
	return c.ID, true, nil
}

func (e *Engine) findClient(ctx context.Context, phone string, externalID *int64) (*model.Client, error) {
	c, err := e.repo.FindClientByPhone(ctx, phone)
	if err != nil || c != nil {
		return c, err
	}
	if externalID == nil {
		return nil, nil
	}
	return e.repo.FindClientByExternalID(ctx, *externalID)
}
