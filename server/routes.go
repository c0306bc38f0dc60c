// routes.go - HTTP-Routen und Op-Handler
//
// Diese Datei enthaelt:
// - Server: Registry- und Kapazitaets-Zustand des HTTP-Servers
// - GenerateRoutes: gin-Engine mit CORS und allen Endpunkten
// - BatchHandler: Batch/BatchFunction Op
// - UnbatchHandler: Unbatch Op
// - UnbatchGradHandler: UnbatchGrad Op
// - StatusHandler: Queue-Statistiken
package server

import (
	"encoding/binary"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/7blacky7/tensorbatch/api"
	"github.com/7blacky7/tensorbatch/batching"
	"github.com/7blacky7/tensorbatch/envconfig"
	"github.com/7blacky7/tensorbatch/metrics"
	"github.com/7blacky7/tensorbatch/registry"
	"github.com/7blacky7/tensorbatch/tensor"
	"github.com/7blacky7/tensorbatch/unbatch"
)

// Server ist der Op-Invocation-Shell ueber dem Batching-Kern
type Server struct {
	registry *registry.Registry

	// sem begrenzt die Anzahl gleichzeitig wartender Op-Invocations
	sem *semaphore.Weighted
}

// NewServer erstellt einen Server mit eigener Resource-Registry
func NewServer() *Server {
	return &Server{
		registry: registry.New(),
		sem:      semaphore.NewWeighted(int64(envconfig.MaxQueue())),
	}
}

// Close gibt alle registrierten Resources frei
func (s *Server) Close() error {
	return s.registry.Close()
}

// newBatchKey muenzt einen zufaelligen Batch-Schluessel
func newBatchKey() batching.Key {
	u := uuid.New()
	return batching.Key(binary.BigEndian.Uint64(u[:8]))
}

// errorResponse schreibt einen Operationsfehler als JSON
func errorResponse(c *gin.Context, err error) {
	code := api.Code(err)
	c.JSON(api.HTTPStatus(code), api.Error{Code: code, Message: err.Error()})
}

// GenerateRoutes baut die gin-Engine mit allen Endpunkten
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "User-Agent", "Accept"}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.Use(cors.New(corsConfig))

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "tensorbatch is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "tensorbatch is running") })

	r.POST("/api/batch", s.BatchHandler)
	r.POST("/api/unbatch", s.UnbatchHandler)
	r.POST("/api/unbatch/grad", s.UnbatchGradHandler)
	r.GET("/api/status", s.StatusHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}

// acquireSlot reserviert einen Warteplatz oder lehnt die Invocation ab
func (s *Server) acquireSlot(c *gin.Context) bool {
	if !s.sem.TryAcquire(1) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy, please try again.  maximum pending requests exceeded"})
		return false
	}
	return true
}

// BatchHandler behandelt die Batch- und BatchFunction-Ops.
// Die Antwort wird erst geschrieben wenn der done-Callback des Kerns
// gefeuert hat, also die Ausgaben des Aufrufers veroeffentlicht sind.
func (s *Server) BatchHandler(c *gin.Context) {
	var req api.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.acquireSlot(c) {
		return
	}
	defer s.sem.Release(1)

	sharedName := req.SharedName
	if sharedName == "" {
		// Kollisionen standardmaessig vermeiden
		sharedName = "batch/" + req.Function
	}

	if req.MaxBatchSize < 1 {
		errorResponse(c, api.InvalidArgumentf("max_batch_size must be positive; was %d", req.MaxBatchSize))
		return
	}

	inputs, err := tensorsFromPayloads(req.InTensors)
	if err != nil {
		errorResponse(c, err)
		return
	}
	captured, err := tensorsFromPayloads(req.CapturedTensors)
	if err != nil {
		errorResponse(c, err)
		return
	}

	var fn Function
	var hasFn bool
	if req.Function != "" {
		fn, hasFn = LookupFunction(req.Function)
		if !hasFn {
			errorResponse(c, api.InvalidArgumentf("unknown batch function %q", req.Function))
			return
		}
	}

	resource, err := registry.LookupOrCreate(s.registry, req.Container, sharedName, func() (*batching.Resource, error) {
		opts := batching.Options{
			NumBatchThreads:           req.NumBatchThreads,
			MaxBatchSize:              req.MaxBatchSize,
			BatchTimeoutMicros:        req.BatchTimeoutMicros,
			MaxEnqueuedBatches:        req.MaxEnqueuedBatches,
			AllowedBatchSizes:         req.AllowedBatchSizes,
			EnableLargeBatchSplitting: req.EnableLargeBatchSplitting,
		}
		if opts.NumBatchThreads < 1 {
			opts.NumBatchThreads = int(envconfig.NumBatchThreads())
		}
		if opts.MaxEnqueuedBatches < 1 {
			opts.MaxEnqueuedBatches = 10
		}
		if hasFn {
			opts.Function = fn.Run
		}
		return batching.NewResource(opts)
	})
	if err != nil {
		errorResponse(c, err)
		return
	}

	numOutputs := len(inputs) + 2
	if hasFn {
		numOutputs = fn.NumOutputs(len(inputs))
	}

	callCtx := batching.NewCallContext(c.Request.Context(), sharedName, inputs, captured, numOutputs)
	guid := newBatchKey()

	done := make(chan struct{})
	if err := resource.RegisterInput(guid, callCtx, req.BatchingQueue, func() { close(done) }); err != nil {
		errorResponse(c, err)
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		// Der Aufrufer ist weg; der Kern feuert den Callback trotzdem
		return
	}

	if err := callCtx.Status(); err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, api.BatchResponse{
		Outputs: payloadsFromTensors(callCtx.Outputs()),
		ID:      uint64(guid),
	})
}

// UnbatchHandler behandelt die Unbatch-Op
func (s *Server) UnbatchHandler(c *gin.Context) {
	var req api.UnbatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.acquireSlot(c) {
		return
	}
	defer s.sem.Release(1)

	sharedName := req.SharedName
	if sharedName == "" {
		sharedName = "unbatch"
	}

	timeoutMicros := req.TimeoutMicros
	if timeoutMicros <= 0 {
		timeoutMicros = 100_000
	}

	data, err := tensorFromPayload(req.Data)
	if err != nil {
		errorResponse(c, err)
		return
	}
	batchIndex, err := tensorFromPayload(req.BatchIndex)
	if err != nil {
		errorResponse(c, err)
		return
	}

	resource, err := registry.LookupOrCreate(s.registry, req.Container, sharedName, func() (*unbatch.Resource, error) {
		return unbatch.NewResource(timeoutMicros), nil
	})
	if err != nil {
		errorResponse(c, err)
		return
	}

	inputs := []*tensor.Tensor{data, batchIndex, tensor.ScalarI64(int64(req.BatchKey))}
	callCtx := batching.NewCallContext(c.Request.Context(), sharedName, inputs, nil, 1)

	done := make(chan struct{})
	if err := resource.Compute(callCtx, func() { close(done) }); err != nil {
		errorResponse(c, err)
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		return
	}

	if err := callCtx.Status(); err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, api.UnbatchResponse{Output: payloadFromTensor(callCtx.Output(0))})
}

// UnbatchGradHandler behandelt die UnbatchGrad-Op
func (s *Server) UnbatchGradHandler(c *gin.Context) {
	var req api.UnbatchGradRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.acquireSlot(c) {
		return
	}
	defer s.sem.Release(1)

	sharedName := req.SharedName
	if sharedName == "" {
		sharedName = "unbatch_grad"
	}

	originalData, err := tensorFromPayload(req.OriginalData)
	if err != nil {
		errorResponse(c, err)
		return
	}
	batchIndex, err := tensorFromPayload(req.BatchIndex)
	if err != nil {
		errorResponse(c, err)
		return
	}
	grad, err := tensorFromPayload(req.Grad)
	if err != nil {
		errorResponse(c, err)
		return
	}

	resource, err := registry.LookupOrCreate(s.registry, req.Container, sharedName, func() (*unbatch.GradResource, error) {
		return unbatch.NewGradResource(), nil
	})
	if err != nil {
		errorResponse(c, err)
		return
	}

	inputs := []*tensor.Tensor{originalData, batchIndex, grad, tensor.ScalarI64(int64(req.BatchKey))}
	callCtx := batching.NewCallContext(c.Request.Context(), sharedName, inputs, nil, 1)

	done := make(chan struct{})
	if err := resource.Compute(callCtx, func() { close(done) }); err != nil {
		errorResponse(c, err)
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		return
	}

	if err := callCtx.Status(); err != nil {
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, api.UnbatchGradResponse{Output: payloadFromTensor(callCtx.Output(0))})
}

// StatusHandler listet die Queues aller Batch-Resources
func (s *Server) StatusHandler(c *gin.Context) {
	var resp api.StatusResponse
	s.registry.Range(func(container, name string, res any) {
		batchRes, ok := res.(*batching.Resource)
		if !ok {
			return
		}
		for _, stat := range batchRes.QueueStats() {
			resourceName := name
			if container != "" {
				resourceName = container + "/" + name
			}
			resp.Queues = append(resp.Queues, api.QueueStatus{
				Resource:         resourceName,
				Queue:            stat.Name,
				PendingBatches:   stat.Pending,
				ScheduledTasks:   stat.Scheduled,
				ProcessedBatches: stat.Processed,
			})
		}
	})

	c.JSON(http.StatusOK, resp)
}
