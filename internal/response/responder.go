package response

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Template is satisfied by *html/template.Template
type Template interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

type Responder struct {
	DebugMode bool
}

// RespondAndLogError will respond with generic error code (500) and log with slog.LevelError level
func (rr *Responder) RespondAndLogError(w http.ResponseWriter, ctx context.Context, err error) {
	errId := uuid.NewString()
	log(ctx, slog.LevelError, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, http.StatusInternalServerError, err.Error(), errId)
}

func (rr *Responder) RespondAndLogCustom(w http.ResponseWriter, ctx context.Context, err error, lvl slog.Level, status int) {
	errId := uuid.NewString()
	log(ctx, lvl, err.Error(), slog.String("err_id", errId))
	rr.renderError(w, ctx, status, err.Error(), errId)
}

// RespondClientError is for errors caused by the request itself, their message is always shown
func (rr *Responder) RespondClientError(w http.ResponseWriter, ctx context.Context, status int, message string) {
	log(ctx, slog.LevelDebug, message, slog.Int("status", status))
	rr.renderMessage(w, ctx, status, upperFirst(message))
}

func (rr *Responder) SendJson(w http.ResponseWriter, ctx context.Context, data any) {
	bs, err := json.Marshal(data)
	if err != nil {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

func (rr *Responder) SendXml(w http.ResponseWriter, ctx context.Context, contentType string, data any) {
	bs, err := xml.MarshalIndent(data, "", "  ")
	if err != nil {
		rr.RespondAndLogError(w, ctx, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	_, _ = io.WriteString(w, xml.Header)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

// SendHtml renders into a buffer first so that a failing template still gets a proper error response
func (rr *Responder) SendHtml(w http.ResponseWriter, ctx context.Context, status int, t Template, name string, data any) {
	var buf bytes.Buffer
	err := t.ExecuteTemplate(&buf, name, data)
	if err != nil {
		rr.RespondAndLogError(w, ctx, errors.Join(errors.New("rendering "+name), err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.Copy(w, &buf)
}

func (rr *Responder) renderError(w http.ResponseWriter, ctx context.Context, status int, message, errId string) {
	if rr.DebugMode {
		message = upperFirst(message)
	} else {
		message = "Unknown error occurred while processing your request. Error ID: " + errId
	}

	rr.renderMessage(w, ctx, status, message)
}

func (rr *Responder) renderMessage(w http.ResponseWriter, ctx context.Context, status int, message string) {
	data := map[string]any{"error": message}

	bs, err := json.Marshal(data)
	if err == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	} else {
		log(ctx, slog.LevelError, "cannot marshall error response body: "+err.Error())
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		bs = []byte("unknown error")
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.Copy(w, bytes.NewReader(bs))
}

func upperFirst(message string) string {
	r, s := utf8.DecodeRuneInString(message)
	if s == 0 {
		return message
	}

	return string(unicode.ToUpper(r)) + message[s:]
}

// Needed because it skips one more frame item than the slog.Log
func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	l := slog.Default()

	if !l.Enabled(ctx, level) {
		return
	}

	var pc uintptr
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])
	pc = pcs[0]

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}
