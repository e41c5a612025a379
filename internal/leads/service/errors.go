package service

import (
	"errors"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/platform/apperr"
)

// translate maps store and domain errors onto apperr kinds. Errors that are
// already typed pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}
	var te *domain.TransitionError
	switch {
	case errors.As(err, &te):
		return apperr.Wrap(apperr.KindConflict, te.Error(), err)
	case errors.Is(err, domain.ErrLeadNotFound):
		return apperr.Wrap(apperr.KindNotFound, "lead not found", err)
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return apperr.Wrap(apperr.KindConflict, "lead was modified concurrently, retry the request", err)
	case errors.Is(err, builders.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "builder not found", err)
	case errors.Is(err, outbox.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, "notification not found", err)
	case errors.Is(err, outbox.ErrConflict):
		return apperr.Wrap(apperr.KindConflict, "notification is not in a confirmable state", err)
	}
	return err
}
