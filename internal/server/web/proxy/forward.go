package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tracegate/tracegate/internal/audit"
	"github.com/tracegate/tracegate/internal/logger"
	"github.com/tracegate/tracegate/internal/telemetry/prometheus"
	"github.com/tracegate/tracegate/internal/telemetry/stats"
	"github.com/tracegate/tracegate/internal/upstream"
)

const forwardedStreamChunkSize = 32 * 1024

// getForwardHandler proxies POST requests to the upstream selected from
// the request body. A request for the chat completion path with a
// boolean stream flag is relayed chunk by chunk; everything else is
// buffered so the audit record can capture the real response.
func getForwardHandler(log logger.Logger, prod bool, targets *upstream.Registry, store auditStore, client http.Client, auditBestEffort bool, timeOut time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")

		tags := []string{
			fmt.Sprintf("path:%s", path),
		}

		stats.Incr("tracegate.proxy.get_forward_handler.requests", tags, 1)

		cid := c.GetString(correlationId)

		if path == modelsPath {
			stats.Incr("tracegate.proxy.get_forward_handler.method_not_allowed", tags, 1)
			JSON(c, http.StatusMethodNotAllowed, "[tracegate] method not allowed, use GET for the models endpoint")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logError(log, "error when reading request body", prod, cid, err)
			JSON(c, http.StatusBadRequest, "[tracegate] failed to read request body")
			return
		}

		target := targets.Select(body)
		isStreaming := path == chatCompletionPath && upstream.StreamRequested(body)

		// Derived from the inbound request context so a caller that goes
		// away tears down the upstream connection as well.
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeOut)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.BaseUrl+"/"+path, bytes.NewReader(body))
		if err != nil {
			logError(log, "error when creating upstream http request", prod, cid, err)
			JSON(c, http.StatusInternalServerError, "[tracegate] failed to create upstream http request")
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", target.Credential))

		if isStreaming {
			req.Header.Set("Accept", "text/event-stream")
			req.Header.Set("Cache-Control", "no-cache")
			req.Header.Set("Connection", "keep-alive")

			forwardStream(c, log, prod, store, client, req, path, body, auditBestEffort, target.Name, tags)
			return
		}

		start := time.Now()

		res, err := client.Do(req)
		if err != nil {
			stats.Incr("tracegate.proxy.get_forward_handler.http_client_error", tags, 1)
			prometheus.UpstreamErrors.WithLabelValues(target.Name).Inc()

			logError(log, "error when forwarding request to upstream", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error forwarding request: %v", err))
			return
		}
		defer res.Body.Close()

		dur := time.Since(start)
		stats.Timing("tracegate.proxy.get_forward_handler.latency", dur, tags, 1)

		bs, err := io.ReadAll(res.Body)
		if err != nil {
			logError(log, "error when reading upstream response body", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error forwarding request: %v", err))
			return
		}

		// The audit record only ever holds parsed JSON. A response the
		// proxy cannot parse is treated like a transport failure.
		var payload json.RawMessage
		if err := json.Unmarshal(bs, &payload); err != nil {
			stats.Incr("tracegate.proxy.get_forward_handler.malformed_upstream_response", tags, 1)
			logError(log, "error when parsing upstream response body", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error forwarding request: %v", err))
			return
		}

		if err := writeAudit(store, log, prod, cid, auditBestEffort, path, body, payload); err != nil {
			JSON(c, http.StatusInternalServerError, "[tracegate] failed to persist audit record")
			return
		}

		if res.StatusCode == http.StatusOK {
			stats.Incr("tracegate.proxy.get_forward_handler.success", tags, 1)
			stats.Timing("tracegate.proxy.get_forward_handler.success_latency", dur, tags, 1)
		}

		if res.StatusCode != http.StatusOK {
			stats.Incr("tracegate.proxy.get_forward_handler.error_response", tags, 1)
			logError(log, "error response from upstream", prod, cid, fmt.Errorf("status %d", res.StatusCode))
		}

		c.Data(res.StatusCode, "application/json", bs)
	}
}

// forwardStream relays the upstream body to the caller verbatim. The
// audit record is written before the upstream call is issued, so it
// always precedes the first forwarded chunk; the streamed content itself
// is recorded as a fixed placeholder.
func forwardStream(c *gin.Context, log logger.Logger, prod bool, store auditStore, client http.Client, req *http.Request, path string, body []byte, auditBestEffort bool, targetName string, tags []string) {
	cid := c.GetString(correlationId)

	if err := writeAudit(store, log, prod, cid, auditBestEffort, path, body, audit.StreamPlaceholder); err != nil {
		JSON(c, http.StatusInternalServerError, "[tracegate] failed to persist audit record")
		return
	}

	start := time.Now()

	res, err := client.Do(req)
	if err != nil {
		stats.Incr("tracegate.proxy.get_forward_handler.http_client_error", tags, 1)
		prometheus.UpstreamErrors.WithLabelValues(targetName).Inc()

		logError(log, "error when opening upstream stream", prod, cid, err)
		JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error forwarding request: %v", err))
		return
	}
	defer res.Body.Close()

	c.Header("Content-Type", "application/json")
	c.Status(res.StatusCode)

	buf := make([]byte, forwardedStreamChunkSize)
	c.Stream(func(w io.Writer) bool {
		n, err := res.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return false
			}
		}

		// A mid-stream upstream failure is not surfaced to the caller;
		// the partially delivered stream just ends.
		if err != nil {
			if err != io.EOF {
				stats.Incr("tracegate.proxy.get_forward_handler.stream_interrupted", tags, 1)
				logError(log, "upstream stream ended with error", prod, cid, err)
			}
			return false
		}

		return true
	})

	stats.Timing("tracegate.proxy.get_forward_handler.stream_latency", time.Since(start), tags, 1)
}

func writeAudit(store auditStore, log logger.Logger, prod bool, cid string, bestEffort bool, endpoint string, request, response json.RawMessage) error {
	_, err := store.Write(endpoint, request, response)
	if err == nil {
		return nil
	}

	stats.Incr("tracegate.proxy.audit_write_error", nil, 1)
	prometheus.AuditWriteFailures.Inc()
	logError(log, "error when writing audit record", prod, cid, err)

	if bestEffort {
		return nil
	}

	return err
}
