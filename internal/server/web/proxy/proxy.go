package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/tracegate/tracegate/internal/logger"
	"github.com/tracegate/tracegate/internal/upstream"
)

const (
	correlationId string = "correlationId"

	chatCompletionPath string = "chat/completions"
	modelsPath         string = "models"
)

type auditStore interface {
	Write(endpoint string, request, response json.RawMessage) (string, error)
}

type ProxyServer struct {
	server *http.Server
	log    logger.Logger
}

func NewProxyServer(log logger.Logger, mode string, targets *upstream.Registry, store auditStore, port string, timeOut time.Duration, auditBestEffort bool) (*ProxyServer, error) {
	router := gin.New()
	prod := mode == "production"

	router.Use(getMiddleware(log, prod))

	client := http.Client{}

	router.GET("/health", getGetHealthCheckHandler())
	router.GET("/"+modelsPath, getModelsHandler(log, prod, targets, store, client, auditBestEffort, timeOut))
	router.POST("/*path", getForwardHandler(log, prod, targets, store, client, auditBestEffort, timeOut))
	router.OPTIONS("/*path", getOptionsHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	return &ProxyServer{
		log:    log,
		server: srv,
	}, nil
}

func getGetHealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

// JSON writes an OpenAI style error payload so callers written against
// the upstream API can parse proxy errors the same way.
func JSON(c *gin.Context, code int, message string) {
	c.JSON(code, &goopenai.ErrorResponse{
		Error: &goopenai.APIError{
			Message: message,
			Code:    strconv.Itoa(code),
		},
	})
}

func (ps *ProxyServer) Run() {
	go func() {
		ps.log.Infof("proxy server listening at %s", ps.server.Addr)
		ps.log.Info("POST    | /*path is ready for forwarding requests to the selected upstream")
		ps.log.Info("GET     | /models is ready for listing models from the default upstream")
		ps.log.Info("OPTIONS | /*path is ready for reporting accepted methods")

		if err := ps.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ps.log.Fatalf("error proxy server listening: %v", err)
			return
		}
	}()
}

func (ps *ProxyServer) Shutdown(ctx context.Context) error {
	if err := ps.server.Shutdown(ctx); err != nil {
		ps.log.Infof("error shutting down proxy server: %v", err)

		return err
	}

	return nil
}
