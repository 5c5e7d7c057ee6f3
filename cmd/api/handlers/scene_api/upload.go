package scene_api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/primepisodes/media-engine/cmd/api/handlers/common"
	"github.com/primepisodes/media-engine/internal/ingest"
)

// HandleUpload accepts a multipart clip upload into a show's scene library.
// The response carries the scene in processing status; clients poll until it
// is ready or failed.
func HandleUpload(lib *ingest.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return common.ErrBadRequest("file is required")
		}

		f, err := fileHeader.Open()
		if err != nil {
			return common.ErrBadRequest("failed to open uploaded file")
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			slog.Error("failed to read upload", "error", err)
			return common.ErrInternal("failed to read uploaded file")
		}

		var description *string
		if d := c.FormValue("description"); d != "" {
			description = &d
		}

		scene, err := lib.Upload(c.Request().Context(), ingest.UploadParams{
			ShowID:      c.FormValue("showId"),
			Title:       c.FormValue("title"),
			Description: description,
			Tags:        splitCSV(c.FormValue("tags")),
			Characters:  splitCSV(c.FormValue("characters")),
			FileName:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Data:        data,
		})
		if err != nil {
			var verr *ingest.ValidationError
			if errors.As(err, &verr) {
				return common.ErrBadRequest(verr.Error())
			}
			slog.Error("failed to upload scene", "error", err)
			return common.ErrInternal("failed to upload scene")
		}

		return c.JSON(http.StatusCreated, sceneView(scene))
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
