package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/precis/internal/logger"
	"github.com/samcharles93/precis/internal/summarize"
	"github.com/samcharles93/precis/internal/tokenizer"
)

const downloadName = "summary.txt"

func (s *Server) handleHealth(c *echo.Context) error {
	st := s.provider.Status()
	resp := HealthResponse{Status: "ok", Provider: st}
	if !st.Ready() {
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleOptions(c *echo.Context) error {
	return c.JSON(http.StatusOK, OptionsResponse{
		Model:    s.provider.ModelID(),
		Backend:  s.provider.Status().Backend,
		Defaults: s.defaults,
		Limits:   s.service.Limits(),
	})
}

func (s *Server) handleSummarize(c *echo.Context) error {
	id := newSummaryID()
	c.Response().Header().Set("X-Request-ID", id)

	body, err := decodeJSON[SummarizeRequest](c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, SummarizeResponse{
			ID:      id,
			Object:  "summary",
			Outcome: summarize.InvalidRequest,
			Message: err.Error(),
			Model:   s.provider.ModelID(),
		})
	}

	req := s.defaults.Request(body.Text, body.NumBeams, body.MinLength, body.MaxLength)

	ctx := logger.WithContext(c.Request().Context(), s.log.With("request_id", id))
	res := s.service.Summarize(ctx, req)

	return c.JSON(statusFor(res.Outcome), SummarizeResponse{
		ID:      id,
		Object:  "summary",
		Outcome: res.Outcome,
		Summary: res.Summary,
		Message: res.Message,
		Model:   s.provider.ModelID(),
		Usage: Usage{
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
		},
		Truncated:  res.Truncated,
		Cached:     res.Cached,
		DurationMS: res.Duration.Milliseconds(),
	})
}

func statusFor(o summarize.Outcome) int {
	switch o {
	case summarize.Success:
		return http.StatusOK
	case summarize.NoInput:
		return http.StatusUnprocessableEntity
	case summarize.InvalidRequest:
		return http.StatusBadRequest
	case summarize.ConstructionFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleTokens(c *echo.Context) error {
	req, err := decodeJSON[TokensRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	tok, err := s.provider.Tokenizer()
	if err != nil {
		return writeError(c, http.StatusServiceUnavailable, "construction_error", err.Error())
	}
	n, err := tok.Count(req.Text)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	maxTokens := s.service.Limits().MaxInputTokens
	if maxTokens <= 0 {
		maxTokens = tokenizer.DefaultMaxLength
	}
	return c.JSON(http.StatusOK, TokensResponse{
		Tokens:    n,
		MaxTokens: maxTokens,
		Truncated: n+specialCount(tok) > maxTokens,
	})
}

// specialCount is the number of special tokens wrapped around content.
func specialCount(tok tokenizer.Tokenizer) int {
	n := 0
	sp := tok.Specials()
	if sp.BOS >= 0 {
		n++
	}
	if sp.EOS >= 0 {
		n++
	}
	return n
}

// handleDownload echoes the summary back as a text attachment. It accepts
// either a form field or a JSON body.
func (s *Server) handleDownload(c *echo.Context) error {
	r := c.Request()
	var summary string
	ct, _, _ := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	switch ct {
	case echo.MIMEApplicationJSON:
		body, err := decodeJSON[DownloadRequest](r.Body)
		if err != nil {
			return writeBadRequest(c, err.Error())
		}
		summary = body.Summary
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(c.Response(), r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return writeBadRequest(c, err.Error())
		}
		summary = r.FormValue("summary")
	default:
		return writeError(c, http.StatusUnsupportedMediaType, "invalid_request_error", "expected a JSON or form body")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(summary))
	return err
}
