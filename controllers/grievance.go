package controllers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"grievance-management-api/apperr"
	"grievance-management-api/services"
)

// multipartOverhead is the slack allowed on top of the attachment bytes for
// form fields and part headers.
const multipartOverhead = 1 << 20

type GrievanceController struct {
	grievances *services.GrievanceService
	limits     services.UploadLimits
}

func NewGrievanceController(grievances *services.GrievanceService, limits services.UploadLimits) *GrievanceController {
	return &GrievanceController{grievances: grievances, limits: limits}
}

func (gc *GrievanceController) List(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	page, ok := queryInt(c, "page")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	categoryID, ok := queryUint(c, "category_id")
	if !ok {
		return
	}

	list, err := gc.grievances.List(c.Request.Context(), caller, services.ListGrievancesInput{
		Page:       page,
		Limit:      limit,
		Status:     c.Query("status"),
		Priority:   c.Query("priority"),
		CategoryID: categoryID,
		Search:     c.Query("search"),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create accepts multipart/form-data with files under "attachments", or a
// plain JSON body without files.
func (gc *GrievanceController) Create(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}

	var req services.CreateGrievanceInput
	var uploads []services.Upload
	if isMultipart(c) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, gc.maxBody())
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, formError(err))
			return
		}
		var err error
		if uploads, err = formUploads(c); err != nil {
			respondError(c, err)
			return
		}
	} else if !bindJSON(c, &req) {
		return
	}
	if req.CategoryID != nil && *req.CategoryID == 0 {
		req.CategoryID = nil
	}

	grievance, err := gc.grievances.Create(c.Request.Context(), caller, req, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Grievance created successfully",
		"grievance": grievance,
	})
}

func (gc *GrievanceController) Get(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	grievance, err := gc.grievances.Get(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grievance)
}

func (gc *GrievanceController) Update(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateGrievanceInput
	if !bindJSON(c, &req) {
		return
	}

	grievance, err := gc.grievances.Update(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Grievance updated successfully",
		"grievance": grievance,
	})
}

func (gc *GrievanceController) ChangeStatus(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ChangeStatusInput
	if !bindJSON(c, &req) {
		return
	}

	grievance, err := gc.grievances.ChangeStatus(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Grievance status updated successfully",
		"grievance": grievance,
	})
}

func (gc *GrievanceController) Delete(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := gc.grievances.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Grievance deleted successfully"})
}

func (gc *GrievanceController) ListComments(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	comments, err := gc.grievances.ListComments(c.Request.Context(), caller, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (gc *GrievanceController) AddComment(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CommentInput
	if !bindJSON(c, &req) {
		return
	}

	comment, err := gc.grievances.AddComment(c.Request.Context(), caller, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Comment added successfully",
		"comment": comment,
	})
}

func (gc *GrievanceController) AddAttachments(c *gin.Context) {
	caller, ok := currentCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !isMultipart(c) {
		respondError(c, apperr.Validation("No files uploaded"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, gc.maxBody())
	uploads, err := formUploads(c)
	if err != nil {
		respondError(c, err)
		return
	}

	attachments, err := gc.grievances.AddAttachments(c.Request.Context(), caller, id, uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Attachments uploaded successfully",
		"attachments": attachments,
	})
}

func (gc *GrievanceController) maxBody() int64 {
	return gc.limits.MaxFileSize*int64(gc.limits.MaxFiles) + multipartOverhead
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formUploads turns the "attachments" parts into service uploads.
func formUploads(c *gin.Context) ([]services.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, formError(err)
	}
	headers := form.File["attachments"]
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, uploadFromHeader(fh))
	}
	return uploads, nil
}

func uploadFromHeader(fh *multipart.FileHeader) services.Upload {
	return services.Upload{
		Name: fh.Filename,
		Size: fh.Size,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("Request body too large")
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return apperr.Validation("Malformed multipart request")
	}
	return services.ValidationError(err)
}
