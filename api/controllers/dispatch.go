package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trackbeam/trackbeam-backend/api/responses"
	"github.com/trackbeam/trackbeam-backend/api/validators"
	"github.com/trackbeam/trackbeam-backend/internal/dispatch"
	pkgerrors "github.com/trackbeam/trackbeam-backend/pkg/errors"
	"github.com/trackbeam/trackbeam-backend/pkg/logger"
	"github.com/trackbeam/trackbeam-backend/pkg/pagination"
)

// DeadLetters lists a shop's dead-lettered jobs, newest failures first.
func DeadLetters(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := validators.SanitizeShopDomain(r.URL.Query().Get("shop"))
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.DeadLetters(r.Context(), shop, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if page.Items == nil {
			page.Items = []dispatch.DeadLetterItem{}
		}
		responses.WriteSuccess(w, page)
	}
}

// RearmJob resets one dead-lettered job back to pending.
func RearmJob(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid job id"))
			return
		}

		if err := svc.Rearm(r.Context(), jobID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"job_id": jobID, "status": "pending"})
	}
}

type rearmAllRequest struct {
	ShopDomain string `json:"shop_domain" validate:"required,hostname,max=255"`
}

// RearmAll resets every dead-lettered job for one shop.
func RearmAll(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rearmAllRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rearmed, err := svc.RearmAll(r.Context(), req.ShopDomain)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"shop_domain": req.ShopDomain, "rearmed": rearmed})
	}
}

// JobStatusCounts reports the queue composition for one shop.
func JobStatusCounts(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop := validators.SanitizeShopDomain(r.URL.Query().Get("shop"))

		counts, err := svc.StatusCounts(r.Context(), shop)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if counts == nil {
			counts = []dispatch.StatusCount{}
		}
		responses.WriteSuccess(w, map[string]any{"shop_domain": shop, "counts": counts})
	}
}
