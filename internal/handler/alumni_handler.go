package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conces/conces-api/internal/dto"
	"github.com/conces/conces-api/internal/middleware"
	"github.com/conces/conces-api/internal/models"
	"github.com/conces/conces-api/internal/service"
	appErrors "github.com/conces/conces-api/pkg/errors"
	"github.com/conces/conces-api/pkg/response"
)

// AlumniHandler handles the alumni directory endpoints.
type AlumniHandler struct {
	service *service.AlumniService
	exports *service.ExportService
}

// NewAlumniHandler creates a new alumni handler.
func NewAlumniHandler(svc *service.AlumniService, exports *service.ExportService) *AlumniHandler {
	return &AlumniHandler{service: svc, exports: exports}
}

// parseFilter builds the directory filter from query parameters. Branch
// admins are always pinned to their own branch regardless of the query.
func (h *AlumniHandler) parseFilter(c *gin.Context) models.AlumniFilter {
	var filter models.AlumniFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.Limit = limit
	}
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	filter.Specialization = c.Query("specialization")
	filter.BranchID = c.Query("branch_id")

	if raw := c.Query("graduation_year"); raw != "" {
		if year, err := strconv.Atoi(raw); err == nil {
			filter.GraduationYear = &year
		}
	}
	for key, dest := range map[string]**bool{
		"available_for_mentorship": &filter.AvailableForMentorship,
		"is_mentor":                &filter.IsMentor,
		"active":                   &filter.Active,
	} {
		if raw := c.Query(key); raw != "" {
			if val, err := strconv.ParseBool(raw); err == nil {
				*dest = &val
			}
		}
	}

	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleBranchAdmin && claims.BranchID != nil {
		filter.BranchID = *claims.BranchID
	}

	return filter
}

// List godoc
// @Summary List alumni
// @Description Browse the alumni directory with pagination, search, filters and sorting
// @Tags Alumni
// @Produce json
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param search query string false "Search by name or email"
// @Param graduation_year query int false "Graduation year filter"
// @Param specialization query string false "Specialization filter"
// @Param branch_id query string false "Branch filter"
// @Param is_mentor query bool false "Mentor filter"
// @Param available_for_mentorship query bool false "Mentorship availability filter"
// @Param active query bool false "Active filter"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "Sort order"
// @Success 200 {object} response.Envelope
// @Router /alumni [get]
func (h *AlumniHandler) List(c *gin.Context) {
	filter := h.parseFilter(c)

	alumni, pagination, fromCache, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, fromCache)
	meta := middleware.ExtractMeta(c)
	meta["showing_from"], meta["showing_to"] = pagination.Range()
	response.JSON(c, http.StatusOK, alumni, pagination, meta)
}

// Get godoc
// @Summary Get alumni profile
// @Description Get one alumni profile with branch context
// @Tags Alumni
// @Produce json
// @Param id path string true "Alumni ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alumni/{id} [get]
func (h *AlumniHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Register alumni
// @Description Register a new alumni profile
// @Tags Alumni
// @Accept json
// @Produce json
// @Param payload body service.CreateAlumniRequest true "Alumni payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /alumni [post]
func (h *AlumniHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateAlumniRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	alumni, err := h.service.Create(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, alumni)
}

// Update godoc
// @Summary Update alumni profile
// @Description Partially update an alumni profile; omitted fields keep their value
// @Tags Alumni
// @Accept json
// @Produce json
// @Param id path string true "Alumni ID"
// @Param payload body models.AlumniUpdate true "Fields to update"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alumni/{id} [put]
func (h *AlumniHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var update models.AlumniUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	detail, err := h.service.Update(c.Request.Context(), c.Param("id"), update, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Deactivate alumni
// @Description Soft delete an alumni profile by marking it inactive
// @Tags Alumni
// @Produce json
// @Param id path string true "Alumni ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /alumni/{id} [delete]
func (h *AlumniHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Bulk godoc
// @Summary Bulk action on alumni
// @Description Apply one action to a selection of alumni; every id is attempted and reported
// @Tags Alumni
// @Accept json
// @Produce json
// @Param payload body dto.BulkActionRequest true "Bulk action payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /alumni/bulk [post]
func (h *AlumniHandler) Bulk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.BulkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	res, err := h.service.Bulk(c.Request.Context(), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	// 200 even with partial failures; the body settles every id.
	response.JSON(c, http.StatusOK, res, nil)
}

// Export godoc
// @Summary Download alumni export
// @Description Synchronously export the filtered directory as csv, json or pdf
// @Tags Alumni
// @Produce octet-stream
// @Param format query string false "csv, json or pdf (default csv)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /alumni/export [get]
func (h *AlumniHandler) Export(c *gin.Context) {
	format := models.ExportFormat(c.DefaultQuery("format", "csv"))
	switch format {
	case models.ExportFormatCSV, models.ExportFormatJSON, models.ExportFormatPDF:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format)))
		return
	}

	filters := map[string]string{}
	for _, key := range []string{"search", "graduation_year", "specialization", "branch_id", "available_for_mentorship", "is_mentor", "active", "sort_by", "sort_order"} {
		if raw := c.Query(key); raw != "" {
			filters[key] = raw
		}
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleBranchAdmin && claims.BranchID != nil {
		filters["branch_id"] = *claims.BranchID
	}

	payload, filename, contentType, err := h.exports.Render(c.Request.Context(), models.ExportResourceAlumni, format, filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
