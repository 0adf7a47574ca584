package handler

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/tabib_backend/internal/api/http/middleware"
	"github.com/Alijeyrad/tabib_backend/internal/repo"
	svcfile "github.com/Alijeyrad/tabib_backend/internal/service/file"
)

const maxFormFiles = 20

var errTooManyFiles = errors.New("too many files in one request")

// callerFrom returns the authenticated caller. Routes behind AuthRequired
// always have one.
func callerFrom(c fiber.Ctx) (repo.Caller, bool) {
	return middleware.CallerFromFiber(c)
}

func paramID(c fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func queryID(c fiber.Ctx, name string) (*uuid.UUID, bool) {
	s := c.Query(name)
	if s == "" {
		return nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// queryDay parses ?day=YYYY-MM-DD in loc, defaulting to today.
func queryDay(c fiber.Ctx, loc *time.Location) (time.Time, bool) {
	s := c.Query("day")
	if s == "" {
		return time.Now().In(loc), true
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	return t, err == nil
}

func isMultipart(c fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

// bindPayload decodes the JSON body, or the "payload" field of a multipart
// form when files travel alongside it.
func bindPayload(c fiber.Ctx, out any) error {
	if isMultipart(c) {
		return json.Unmarshal([]byte(c.FormValue("payload")), out)
	}
	return c.Bind().JSON(out)
}

// formUploads reads every file under field from a multipart form.
func formUploads(c fiber.Ctx, field string) ([]svcfile.Upload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}
	return readUploads(form.File[field])
}

func readUploads(headers []*multipart.FileHeader) ([]svcfile.Upload, error) {
	if len(headers) > maxFormFiles {
		return nil, errTooManyFiles
	}
	out := make([]svcfile.Upload, 0, len(headers))
	for _, fh := range headers {
		up, err := svcfile.FromMultipart(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}
