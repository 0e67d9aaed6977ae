package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/chronos-tachyon/verserve/internal/constants"
	"github.com/chronos-tachyon/verserve/lib/mainutil"
	"github.com/chronos-tachyon/verserve/lib/versionfile"
)

// HealthSetter records subsystem health.  *mainutil.MultiServer is one.
type HealthSetter interface {
	SetHealth(subsystemName string, isHealthy bool)
}

// type RootHandler {{{

// RootHandler wraps every request: it assigns a request ID, attaches a
// request-scoped logger, recovers panics, and records metrics.
type RootHandler struct {
	Subsystem string
	Metrics   *Metrics
	Next      http.Handler
}

func (h RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := xid.New()
	idStr := id.String()
	w.Header().Set(constants.HeaderXID, idStr)
	w.Header().Set(constants.HeaderServer, "verserve/"+mainutil.AppVersion())

	ctx := r.Context()

	logger := log.Logger
	remoteAddr := r.RemoteAddr
	if cc := GetConnContext(ctx); cc != nil {
		logger = cc.Logger
		remoteAddr = addrWithNoPort(cc.RemoteAddr)
	}

	c := logger.With()
	c = c.Str("xid", idStr)
	c = c.Str("ip", remoteAddr)
	c = c.Str("method", r.Method)
	c = c.Str("host", r.Host)
	c = c.Str("url", r.URL.String())
	if value := r.UserAgent(); value != "" {
		c = c.Str("userAgent", value)
	}

	metrics := h.Metrics
	if metrics == nil {
		metrics = gMetrics[h.Subsystem]
	}
	if metrics == nil {
		metrics = gMetrics[constants.SubsystemHTTP]
	}

	rc := &RequestContext{
		Logger:    c.Logger(),
		Subsystem: h.Subsystem,
		XID:       id,
		Metrics:   metrics,
		Writer:    WrapWriter(w, r),
	}
	ctx = WithRequestContext(ctx, rc)
	ctx = rc.Logger.WithContext(ctx)
	ctx = hlog.CtxWithID(ctx, id)
	r = r.WithContext(ctx)
	rc.Context = ctx

	rc.Logger.Trace().
		Msg("start request")
	rc.StartTime = time.Now()
	rc.Metrics.RequestCountByMethod.WithLabelValues(simplifyHTTPMethod(r.Method)).Inc()

	defer func() {
		rc.EndTime = time.Now()

		panicValue := recover()
		if panicValue != nil {
			rc.Writer.WriteError(http.StatusInternalServerError)
			rc.Metrics.PanicCount.Inc()
		}

		elapsed := rc.EndTime.Sub(rc.StartTime)
		rc.Metrics.ResponseCountByCode.WithLabelValues(simplifyHTTPStatusCode(rc.Writer.Status())).Inc()
		rc.Metrics.ResponseSize.Observe(float64(rc.Writer.BytesWritten()))
		rc.Metrics.ResponseDuration.Observe(elapsed.Seconds())

		var event *zerolog.Event
		if panicValue != nil {
			event = rc.Logger.Error()
			switch x := panicValue.(type) {
			case error:
				event = event.AnErr("panic", x)
			case string:
				event = event.Str("panic", x)
			default:
				event = event.Interface("panic", x)
			}
		} else {
			event = rc.Logger.Debug()
		}
		event = event.Dur("elapsed", elapsed)
		event = event.Int("status", rc.Writer.Status())
		if contentType := rc.Writer.Header().Get(constants.HeaderContentType); contentType != "" {
			event = event.Str("contentType", contentType)
		}
		event = event.Int64("bytesWritten", rc.Writer.BytesWritten())
		event = event.Bool("sawError", rc.Writer.SawError())
		event.Msg("end request")
	}()

	h.Next.ServeHTTP(rc.Writer, r)
}

var _ http.Handler = RootHandler{}

// }}}

// type VersionHandler {{{

// VersionHandler answers every request, whatever its method or path, with the
// current contents of the version file.  The file is read afresh each time.
type VersionHandler struct {
	Reader  versionfile.Reader
	Health  HealthSetter
	Metrics *Metrics
}

func (h VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.Logger
	metrics := h.Metrics
	if rc := GetRequestContext(r.Context()); rc != nil {
		logger = rc.Logger
		if metrics == nil {
			metrics = rc.Metrics
		}
	}

	body, err := h.Reader.Body(r.Context())
	metrics.ObserveVersionRead(err)
	h.setHealth(err == nil)

	if err != nil {
		logger.Error().
			Str("path", h.Reader.FilePath()).
			Err(err).
			Msgf("Error reading %s", h.Reader.FilePath())
		writeError(w, r, http.StatusInternalServerError)
		return
	}

	hdrs := w.Header()
	hdrs.Set(constants.HeaderContentType, constants.ContentTypeTextPlain)
	hdrs.Set(constants.HeaderContentLen, strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h VersionHandler) setHealth(isHealthy bool) {
	if h.Health != nil {
		h.Health.SetHealth(constants.SubsystemVersion, isHealthy)
	}
}

var _ http.Handler = VersionHandler{}

// }}}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int) {
	ww, ok := w.(WrappedWriter)
	if !ok {
		ww = WrapWriter(w, r)
	}
	ww.WriteError(statusCode)
}
