package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"finchat/internal/app"
	"finchat/internal/model"
	"finchat/internal/transport/http/response"
)

type AdminHandler struct {
	adminService *app.AdminService
}

func NewAdminHandler(adminService *app.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

type TestSearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"omitempty,gt=0,lte=20"`
}

type IngestRequest struct {
	Documents []model.Document `json:"documents" binding:"required,min=1"`
}

type DeleteDocumentsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

func (h *AdminHandler) IndexStats(c *gin.Context) {
	stats, err := h.adminService.IndexStats()
	if err != nil {
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "vector index unavailable")
		return
	}

	response.OK(c, stats)
}

func (h *AdminHandler) TestSearch(c *gin.Context) {
	var req TestSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	results, err := h.adminService.TestSearch(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "query must not be empty")
		default:
			response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "search failed")
		}
		return
	}

	response.OK(c, gin.H{"results": results, "count": len(results)})
}

// IngestDocuments enqueues documents for asynchronous indexing.
func (h *AdminHandler) IngestDocuments(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.adminService.IngestDocuments(c.Request.Context(), req.Documents); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "documents need an id and text")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "enqueue documents failed")
		}
		return
	}

	c.JSON(http.StatusAccepted, response.APIResponse{
		Code:    response.CodeOK,
		Message: "accepted",
		Data:    gin.H{"queued": len(req.Documents)},
	})
}

func (h *AdminHandler) DeleteDocuments(c *gin.Context) {
	var req DeleteDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	if err := h.adminService.DeleteDocuments(c.Request.Context(), req.IDs); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "ids must not be empty")
		default:
			response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailure, "delete documents failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted": len(req.IDs)})
}
