package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tracegate/tracegate/internal/logger"
	"github.com/tracegate/tracegate/internal/telemetry/prometheus"
	"github.com/tracegate/tracegate/internal/telemetry/stats"
	"github.com/tracegate/tracegate/internal/upstream"
)

type modelDescriptor struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// getModelsHandler lists the default upstream's model catalog and
// appends the alternate upstream's sole advertised model as the last
// entry.
func getModelsHandler(log logger.Logger, prod bool, targets *upstream.Registry, store auditStore, client http.Client, auditBestEffort bool, timeOut time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats.Incr("tracegate.proxy.get_models_handler.requests", nil, 1)

		cid := c.GetString(correlationId)

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeOut)
		defer cancel()

		target := targets.Default()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.BaseUrl+"/"+modelsPath, nil)
		if err != nil {
			logError(log, "error when creating upstream http request", prod, cid, err)
			JSON(c, http.StatusInternalServerError, "[tracegate] failed to create upstream http request")
			return
		}

		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", target.Credential))

		start := time.Now()

		res, err := client.Do(req)
		if err != nil {
			stats.Incr("tracegate.proxy.get_models_handler.http_client_error", nil, 1)
			prometheus.UpstreamErrors.WithLabelValues(target.Name).Inc()

			logError(log, "error when listing upstream models", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error getting models: %v", err))
			return
		}
		defer res.Body.Close()

		stats.Timing("tracegate.proxy.get_models_handler.latency", time.Since(start), nil, 1)

		bs, err := io.ReadAll(res.Body)
		if err != nil {
			logError(log, "error when reading upstream models response body", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error getting models: %v", err))
			return
		}

		if res.StatusCode != http.StatusOK {
			stats.Incr("tracegate.proxy.get_models_handler.error_response", nil, 1)
			logError(log, "error response from upstream models listing", prod, cid, fmt.Errorf("status %d", res.StatusCode))
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error getting models: upstream returned status %d", res.StatusCode))
			return
		}

		// The catalog is kept as raw JSON keyed by top level field so
		// everything except data passes through untouched.
		catalog := map[string]json.RawMessage{}
		if err := json.Unmarshal(bs, &catalog); err != nil {
			logError(log, "error when parsing upstream models response body", prod, cid, err)
			JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error getting models: %v", err))
			return
		}

		entries := []json.RawMessage{}
		if raw, ok := catalog["data"]; ok {
			if err := json.Unmarshal(raw, &entries); err != nil {
				logError(log, "error when parsing upstream models data field", prod, cid, err)
				JSON(c, http.StatusInternalServerError, fmt.Sprintf("[tracegate] error getting models: %v", err))
				return
			}
		}

		appended, err := json.Marshal(&modelDescriptor{
			Id:      upstream.AltModelId,
			Object:  "model",
			Created: time.Now().Unix(),
			OwnedBy: "system",
		})
		if err != nil {
			logError(log, "error when marshalling appended model descriptor", prod, cid, err)
			JSON(c, http.StatusInternalServerError, "[tracegate] error getting models")
			return
		}

		entries = append(entries, appended)

		augmented, err := json.Marshal(entries)
		if err != nil {
			logError(log, "error when marshalling augmented model entries", prod, cid, err)
			JSON(c, http.StatusInternalServerError, "[tracegate] error getting models")
			return
		}
		catalog["data"] = augmented

		out, err := json.Marshal(catalog)
		if err != nil {
			logError(log, "error when marshalling augmented model catalog", prod, cid, err)
			JSON(c, http.StatusInternalServerError, "[tracegate] error getting models")
			return
		}

		if err := writeAudit(store, log, prod, cid, auditBestEffort, modelsPath, nil, out); err != nil {
			JSON(c, http.StatusInternalServerError, "[tracegate] failed to persist audit record")
			return
		}

		stats.Incr("tracegate.proxy.get_models_handler.success", nil, 1)

		c.Data(http.StatusOK, "application/json", out)
	}
}
