package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/lims_backend/config"
	"bitbucket.org/mmdatafocus/lims_backend/middlewares"
	"bitbucket.org/mmdatafocus/lims_backend/models"
	"bitbucket.org/mmdatafocus/lims_backend/reports"
	"bitbucket.org/mmdatafocus/lims_backend/store"
	"bitbucket.org/mmdatafocus/lims_backend/utils"
	"bitbucket.org/mmdatafocus/lims_backend/workflow"
)

const defaultPort = "8080"

var (
	appMu  sync.RWMutex
	engine *workflow.Engine
	runner *workflow.BulkRunner
)

func getEngine() *workflow.Engine {
	appMu.RLock()
	defer appMu.RUnlock()
	return engine
}

func getRunner() *workflow.BulkRunner {
	appMu.RLock()
	defer appMu.RUnlock()
	return runner
}

type bulkRequest struct {
	Orders []workflow.BulkItem `json:"orders" binding:"dive"`
	Reason string              `json:"reason"`
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		ve  *utils.ValidationError
		ite *utils.IllegalTransitionError
	)
	switch {
	case utils.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &ite):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseFilter(c *gin.Context) (models.OrderFilter, error) {
	var filter models.OrderFilter
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if v := c.Query("dateFrom"); v != "" && filter.DateFrom.IsZero() {
			if ts, err := time.Parse(layout, v); err == nil {
				filter.DateFrom = ts
			}
		}
		if v := c.Query("dateTo"); v != "" && filter.DateTo.IsZero() {
			if ts, err := time.Parse(layout, v); err == nil {
				filter.DateTo = ts
			}
		}
	}
	if c.Query("dateFrom") != "" && filter.DateFrom.IsZero() {
		return filter, &utils.ValidationError{Field: "dateFrom", Reason: "expected RFC3339 or YYYY-MM-DD"}
	}
	if c.Query("dateTo") != "" && filter.DateTo.IsZero() {
		return filter, &utils.ValidationError{Field: "dateTo", Reason: "expected RFC3339 or YYYY-MM-DD"}
	}
	filter.BranchCode = c.Query("branch")
	filter.Department = c.Query("department")
	filter.OrderStatus = models.OrderStatus(c.Query("status"))
	filter.PatientType = c.Query("patientType")
	filter.TestStatus = c.Query("testStatus")
	filter.Search = c.Query("search")
	return filter, nil
}

func searchOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := parseFilter(c)
		if err != nil {
			writeError(c, err)
			return
		}
		results, err := getEngine().Repo.Search(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": results, "count": len(results)})
	}
}

func bulkHandler(op models.BulkOperation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// An empty selection means "everything the current filter matches";
		// the selection is resolved here, before the run starts, so the
		// runner works a fixed list.
		if len(req.Orders) == 0 {
			filter, err := parseFilter(c)
			if err != nil {
				writeError(c, err)
				return
			}
			results, err := getEngine().Repo.Search(c.Request.Context(), filter)
			if err != nil {
				writeError(c, err)
				return
			}
			for _, res := range results {
				req.Orders = append(req.Orders, workflow.BulkItem{
					PatientID: res.Patient.PatientID,
					OrderID:   res.Order.OrderID,
				})
			}
		}

		run, err := getRunner().Start(c.Request.Context(), op, req.Orders, req.Reason)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, run.Snapshot())
	}
}

func getRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := getRunner().Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusOK, run.Snapshot())
	}
}

func cancelRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := getRunner().Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		run.Cancel()
		c.JSON(http.StatusAccepted, run.Snapshot())
	}
}

func exportOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := parseFilter(c)
		if err != nil {
			writeError(c, err)
			return
		}
		eng := getEngine()
		results, err := eng.Repo.Search(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}

		exportType := c.DefaultQuery("type", "data")
		var (
			data    []byte
			prefix  string
			buildEr error
		)
		switch exportType {
		case "data":
			prefix = "orders_data"
			wb, err := reports.OrdersDataExport(results)
			if err == nil {
				data, buildEr = reports.ExportBytes(wb)
			} else {
				buildEr = err
			}
		case "results":
			prefix = "orders_results"
			catalog, err := eng.Repo.TestCatalog(c.Request.Context())
			if err != nil {
				writeError(c, err)
				return
			}
			wb, err := reports.OrdersResultsExport(results, catalog)
			if err == nil {
				data, buildEr = reports.ExportBytes(wb)
			} else {
				buildEr = err
			}
		default:
			writeError(c, &utils.ValidationError{Field: "type", Reason: "expected data or results"})
			return
		}
		if buildEr != nil {
			writeError(c, buildEr)
			return
		}

		if url, err := reports.ArchiveExport(c.Request.Context(), prefix, data); err != nil {
			config.LogError(config.GetLogger(), "server.go", "exportOrdersHandler", "archive", nil, err)
		} else if url != "" {
			c.Header("X-Export-Location", url)
		}

		c.Header("Content-Disposition", `attachment; filename="`+prefix+`.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

// customErrorLogger logs only requests that collected errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until the store is ready, app endpoints return 503.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if getEngine() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Require an explicit allowlist in production; allow all elsewhere.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "X-User-Email", "X-User-Name", "X-Branch-Code", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "X-Export-Location", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.IdentityMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/orders", searchOrdersHandler())
	r.POST("/bulk/barcodes", bulkHandler(models.BulkOperationBarcodes))
	r.POST("/bulk/collect", bulkHandler(models.BulkOperationCollect))
	r.POST("/bulk/results", bulkHandler(models.BulkOperationResults))
	r.POST("/bulk/authenticate", bulkHandler(models.BulkOperationAuthenticate))
	r.POST("/bulk/recollect", bulkHandler(models.BulkOperationRecollect))
	r.GET("/bulk/runs/:id", getRunHandler())
	r.POST("/bulk/runs/:id/cancel", cancelRunHandler())
	r.GET("/exports/orders.xlsx", exportOrdersHandler())

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectRedisWithRetry()
	fsClient, err := config.GetFirestoreClient(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "firestore"}).Panic(err.Error())
	}
	docStore := store.NewFirestore(fsClient)

	eng := workflow.NewEngine(docStore, logger)
	if err := eng.Repo.RebuildIndex(sigCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "order index"}).Warn("initial index build failed: " + err.Error())
	}
	appMu.Lock()
	engine = eng
	runner = workflow.NewBulkRunner(eng, logger)
	appMu.Unlock()

	// Notification dispatcher (publishes AFTER the order commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewNotifyDispatcher(docStore, logger).Run(dispatcherCtx)

	log.Println("Server started successfully on port " + port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers before draining requests.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
