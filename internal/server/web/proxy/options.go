package proxy

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type endpointInfo struct {
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requires_auth"`
	ContentType  string `json:"content_type,omitempty"`
}

type discoveryResponse struct {
	Methods     []string                `json:"methods"`
	Description string                  `json:"description"`
	Endpoints   map[string]endpointInfo `json:"endpoints"`
}

// getOptionsHandler reports the methods the proxy accepts at a path.
// Pure method introspection; nothing is forwarded or audited.
func getOptionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")

		methods := []string{http.MethodOptions}
		endpoints := map[string]endpointInfo{}

		if path == modelsPath {
			methods = append(methods, http.MethodGet)
			endpoints[http.MethodGet] = endpointInfo{
				Description:  "List available models",
				RequiresAuth: true,
			}
		}

		if path != modelsPath {
			methods = append(methods, http.MethodPost)
			endpoints[http.MethodPost] = endpointInfo{
				Description:  "Forward requests to the upstream API and log interactions",
				RequiresAuth: true,
				ContentType:  "application/json",
			}
		}

		endpoints[http.MethodOptions] = endpointInfo{
			Description: "Get available methods and endpoint information",
		}

		allow := strings.Join(methods, ", ")
		c.Header("Allow", allow)
		c.Header("Access-Control-Allow-Methods", allow)
		c.Header("Access-Control-Allow-Headers", "*")

		c.JSON(http.StatusOK, &discoveryResponse{
			Methods:     methods,
			Description: "OpenAI API Proxy with Request Tracking",
			Endpoints:   endpoints,
		})
	}
}
