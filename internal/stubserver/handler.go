package stubserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/identitytype"
	"github.com/dmitrijs2005/idsync/internal/metrics"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/request"
	"github.com/dmitrijs2005/idsync/internal/validate"
	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Errors []request.ResponseError `json:"errors"`
}

type modifyResult struct {
	IdentityType string `json:"identity_type"`
	NewValue     string `json:"new_value"`
}

type modifyResponse struct {
	ChangeResults []modifyResult `json:"change_results"`
}

func failure(c echo.Context, status int, code, message string) error {
	return c.JSON(status, errorBody{Errors: []request.ResponseError{{Code: code, Message: message}}})
}

// checkNames reports the first identity name the service does not know.
func checkNames(names []string) string {
	for _, n := range names {
		if n == common.DeviceStampKey {
			continue
		}
		if _, ok := identitytype.FromName(n); !ok {
			return n
		}
	}
	return ""
}

func (s *Server) identity(op validate.Operation) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req request.IdentityRequest
		if err := c.Bind(&req); err != nil {
			metrics.RecordStubRequest(string(op), http.StatusBadRequest)
			return failure(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed body")
		}
		if req.KnownIdentities == nil {
			metrics.RecordStubRequest(string(op), http.StatusBadRequest)
			return failure(c, http.StatusBadRequest, "INVALID_REQUEST", "known_identities is required")
		}
		names := make([]string, 0, len(req.KnownIdentities))
		for k := range req.KnownIdentities {
			names = append(names, k)
		}
		if bad := checkNames(names); bad != "" {
			metrics.RecordStubRequest(string(op), http.StatusBadRequest)
			return failure(c, http.StatusBadRequest, "LOOKUP_ERROR", "unknown identity type "+bad)
		}

		var previous string
		if req.PreviousMPID != nil {
			previous = string(*req.PreviousMPID)
		}
		mpid, loggedIn := s.dir.Resolve(op, req.KnownIdentities, previous)
		matched, _ := s.dir.Identities(mpid)

		s.log.Debug(c.Request().Context(), "identity resolved", "op", op, "mpid", mpid, "previous", previous)
		metrics.RecordStubRequest(string(op), http.StatusOK)
		return c.JSON(http.StatusOK, request.IdentityResponse{
			Context:           s.dir.NextContext(),
			MPID:              models.MPID(mpid),
			IsEphemeral:       len(matched) == 0,
			IsLoggedIn:        loggedIn,
			MatchedIdentities: matched,
		})
	}
}

func (s *Server) modify(c echo.Context) error {
	const op = string(validate.OpModify)
	mpid := c.Param("mpid")

	var req request.ModifyRequest
	if err := c.Bind(&req); err != nil {
		metrics.RecordStubRequest(op, http.StatusBadRequest)
		return failure(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed body")
	}
	if len(req.IdentityChanges) == 0 {
		metrics.RecordStubRequest(op, http.StatusBadRequest)
		return failure(c, http.StatusBadRequest, "INVALID_REQUEST", "identity_changes is required")
	}
	names := make([]string, 0, len(req.IdentityChanges))
	for _, ch := range req.IdentityChanges {
		names = append(names, ch.IdentityType)
	}
	bad := checkNames(names)
	if containsStamp(names) {
		bad = common.DeviceStampKey
	}
	if bad != "" {
		metrics.RecordStubRequest(op, http.StatusBadRequest)
		return failure(c, http.StatusBadRequest, "LOOKUP_ERROR", "cannot modify identity type "+bad)
	}

	if err := s.dir.Modify(mpid, req.IdentityChanges); err != nil {
		if errors.Is(err, ErrUnknownMPID) {
			metrics.RecordStubRequest(op, http.StatusNotFound)
			return failure(c, http.StatusNotFound, "UNKNOWN_MPID", "unknown mpid "+mpid)
		}
		metrics.RecordStubRequest(op, http.StatusInternalServerError)
		return failure(c, http.StatusInternalServerError, "INTERNAL", err.Error())
	}

	results := make([]modifyResult, 0, len(req.IdentityChanges))
	for _, ch := range req.IdentityChanges {
		results = append(results, modifyResult{IdentityType: ch.IdentityType, NewValue: ch.NewValue})
	}
	s.log.Debug(c.Request().Context(), "identities modified", "mpid", mpid, "changes", len(results))
	metrics.RecordStubRequest(op, http.StatusOK)
	return c.JSON(http.StatusOK, modifyResponse{ChangeResults: results})
}

func containsStamp(names []string) bool {
	for _, n := range names {
		if n == common.DeviceStampKey {
			return true
		}
	}
	return false
}
