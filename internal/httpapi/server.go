// Package httpapi exposes a task service as a JSON HTTP API.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/twiced-technology-gmbh/taskorder/internal/store"
)

// RoleHeader carries the caller role of a request.
const RoleHeader = "X-Taskorder-Role"

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Options configures the API server.
type Options struct {
	Logger log.FieldLogger
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Registerer receives the request counter. Nil skips it.
	Registerer prometheus.Registerer
}

// New returns an echo instance serving svc.
func New(svc store.Service, opts Options) *echo.Echo {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = errorHandler(opts.Logger)
	e.Use(requestLogger(opts.Logger, newRequestCounter(opts.Registerer)))

	Register(e, svc, opts)
	return e
}

// Register wires up all API routes on e.
func Register(e *echo.Echo, svc store.Service, opts Options) {
	e.GET("/api/workspaces/:workspace/tasks", listTasks(svc))
	e.POST("/api/workspaces/:workspace/tasks", createTask(svc, &workspaceLocks{}))
	e.GET("/api/tasks/:id", getTask(svc))
	e.PATCH("/api/tasks/:id", patchTask(svc))
	e.DELETE("/api/tasks/:id", deleteTask(svc))
	e.GET("/healthz", healthz())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func newRequestCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	if reg == nil {
		return nil
	}
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskorder_http_requests_total",
			Help: "API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)
	reg.MustRegister(requests)
	return requests
}

func requestLogger(logger log.FieldLogger, requests *prometheus.CounterVec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			if requests != nil {
				requests.WithLabelValues(req.Method, c.Path(), strconv.Itoa(status)).Inc()
			}
			entry := logger.WithFields(log.Fields{
				"method":  req.Method,
				"path":    req.URL.Path,
				"status":  status,
				"latency": time.Since(start),
			})
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Info("request rejected")
			default:
				entry.Debug("request served")
			}
			return nil
		}
	}
}

// sonicSerializer implements echo.JSONSerializer with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	var (
		data []byte
		err  error
	)
	if indent != "" {
		data, err = sonic.ConfigStd.MarshalIndent(i, "", indent)
	} else {
		data, err = sonic.Marshal(i)
	}
	if err != nil {
		return err
	}
	_, err = c.Response().Write(data)
	return err
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return decodeBody(c, i)
}
