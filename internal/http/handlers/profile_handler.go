// Profile HTTP handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/go-review-backend/internal/blobstore"
)

// UploadAvatarResponse reports where the stored avatar is served from.
type UploadAvatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// UploadAvatar godoc
// @ID          uploadAvatar
// @Summary     Upload a profile avatar
// @Description Stores the uploaded image and returns its public URL. The multipart field name is "file".
// @Tags        Profile
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-User-ID  header    string  false "User ID (demo header)"
// @Param       file       formData  file    true  "Image file (png, jpg, jpeg, gif, webp)"
//
// @Success     201  {object} handlers.UploadAvatarResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     413  {object} handlers.ErrorResponse "File too large"
// @Router      /profile/avatar [post]
func (h *Handlers) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field 'file' required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload")
		return
	}
	defer f.Close()

	uid := "anonymous"
	if u := actor(c); u != nil {
		uid = u.ID
	}

	url, err := h.blobs.SaveAvatar(c.Request.Context(), uid, fh.Filename, f)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrUnsupportedType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, blobstore.ErrTooLarge):
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, UploadAvatarResponse{AvatarURL: url})
}
